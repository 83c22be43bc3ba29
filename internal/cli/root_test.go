package cli

import "testing"

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := map[string]bool{"run": false, "console": false, "check": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("subcommand %s not registered", name)
		}
	}

	if flag := root.PersistentFlags().Lookup("file"); flag == nil || flag.DefValue != "runtime.yaml" {
		t.Fatalf("file flag = %+v, want default runtime.yaml", flag)
	}
}
