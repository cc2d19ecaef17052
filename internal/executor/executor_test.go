package executor

import "testing"

func TestSpecValidate(t *testing.T) {
	if err := (Spec{ProjectID: "p"}).Validate(); err == nil {
		t.Fatal("expected missing source url error")
	}
	if err := (Spec{SourceURL: "https://github.com/u/r"}).Validate(); err == nil {
		t.Fatal("expected missing project id error")
	}
	if err := (Spec{ProjectID: "p", SourceURL: "https://github.com/u/r"}).Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPassthroughEnvSkipsUnsetAndReserved(t *testing.T) {
	env := map[string]string{"REDIS_ADDR": "redis:6379", EnvProjectID: "spoofed"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	got := PassthroughEnv([]string{"REDIS_ADDR", "S3_BUCKET", EnvProjectID}, lookup)
	if len(got) != 1 || got[0] != "REDIS_ADDR=redis:6379" {
		t.Fatalf("unexpected passthrough %v", got)
	}
}
