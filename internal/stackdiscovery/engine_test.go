package stackdiscovery

import "testing"

func TestConfigWithDefaultsAppliesMinimumWorkerCount(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}

	cfg = Config{Workers: 8}.withDefaults()
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
}
