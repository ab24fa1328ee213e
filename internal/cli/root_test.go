package cli

import "testing"

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"run":      nil,
		"cycle":    nil,
		"policy":   {"get", "set", "delete", "list"},
		"settings": {"show", "set", "include", "exclude"},
		"budget":   nil,
		"history":  nil,
		"stats":    nil,
		"export":   nil,
		"inspect":  nil,
		"offer":    {"create"},
		"version":  nil,
	}

	for name, subs := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
		for _, sub := range subs {
			c, _, err := rootCmd.Find([]string{name, sub})
			if err != nil || c.Name() != sub {
				t.Fatalf("command %q %q not registered: %v", name, sub, err)
			}
		}
	}

	if f := cycleCmd.Flags().Lookup("dry-run"); f == nil {
		t.Fatal("cycle --dry-run flag missing")
	}
}
