package main

import (
	"flag"
	"log"

	"github.com/danmuck/nwcctl/internal/config"
)

var defaultPaths = map[string]string{
	"nwcctl":    "cmd/nwcctl/config.toml",
	"nwcd":      "cmd/nwcd/config.toml",
	"providers": "providers.toml",
}

func main() {
	kind := flag.String("kind", "nwcd", "config kind: nwcctl|nwcd|providers")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	fallback, ok := defaultPaths[*kind]
	if !ok {
		log.Fatalf("unknown kind: %s", *kind)
	}

	if *validate {
		path := *input
		if path == "" {
			path = fallback
		}
		if err := validateFile(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = fallback
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

// validateFile checks syntax for every kind and provider presets for "providers".
func validateFile(kind, path string) error {
	if kind == "providers" {
		_, err := config.LoadProviders(path)
		return err
	}
	return config.ValidateFile(path)
}
