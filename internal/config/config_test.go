package config

import "testing"

func TestParseDefaultsAndImplicitSystemConnector(t *testing.T) {
	cfg, err := Parse([]byte(`
listeners:
  - name: main
    endpoint: "0.0.0.0:1080"
    handler: socks
handlers:
  socks:
    type: socks5
    settings:
      connector: ""
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Endpoint != "0.0.0.0:1080" {
		t.Fatalf("unexpected listeners: %+v", cfg.Listeners)
	}
	def, ok := cfg.Connectors[""]
	if !ok {
		t.Fatal("expected implicit default connector")
	}
	if def.Type != "system" {
		t.Fatalf("expected default connector type system, got %q", def.Type)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("expected default logging config, got %+v", cfg.Logging)
	}
}

func TestParseExplicitDefaultConnectorNotOverwritten(t *testing.T) {
	cfg, err := Parse([]byte(`
connectors:
  "":
    type: route
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Connectors[""].Type != "route" {
		t.Fatalf("expected explicit default connector preserved, got %+v", cfg.Connectors[""])
	}
}
