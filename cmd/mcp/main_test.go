package main

import "testing"

func TestIsLoopbackListenAddress(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8090": true,
		"localhost:8090": true,
		"[::1]:8090":     true,
		":8090":          false,
		"0.0.0.0:8090":   false,
		"10.1.2.3:8090":  false,
	}
	for addr, want := range cases {
		if got := isLoopbackListenAddress(addr); got != want {
			t.Fatalf("isLoopbackListenAddress(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestEnvBoolWithDefault(t *testing.T) {
	t.Setenv("VS_TEST_BOOL", "")
	if !envBoolWithDefault("VS_TEST_BOOL", true) {
		t.Fatalf("empty should keep default")
	}
	t.Setenv("VS_TEST_BOOL", "false")
	if envBoolWithDefault("VS_TEST_BOOL", true) {
		t.Fatalf("explicit false ignored")
	}
	t.Setenv("VS_TEST_BOOL", "maybe")
	if envBoolWithDefault("VS_TEST_BOOL", false) {
		t.Fatalf("unparsable value should keep default")
	}
}
