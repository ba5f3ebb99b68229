package main

import (
	"flag"
	"log"
	"os"

	"github.com/macropower/loadout/api/v1beta1/configs"
	"github.com/macropower/loadout/pkg/yaml"
)

var outFile = flag.String("o", "schema.json", "Output file for the generated schema")

func main() {
	flag.Parse()

	jsData, err := yaml.NewSchemaGenerator(configs.New()).Generate()
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	err = os.WriteFile(*outFile, append(jsData, '\n'), 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
