package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/opentosca/tosca-template/formatter"
	"github.com/opentosca/tosca-template/tosca"
)

func main() {
	inputFile := pflag.String("input", "", "TOSCA service template file (required)")
	outputFile := pflag.String("output", "", "Write canonical output to this file")
	indent := pflag.Int("indent", 2, "Number of spaces for canonical re-emission indentation")
	inPlace := pflag.Bool("w", false, "Write canonical output back to the source file")
	check := pflag.Bool("check", false, "Check the document is already in canonical form; does not validate")
	strict := pflag.Bool("strict", false, "Put the diagnostic sink in strict mode")
	asJSON := pflag.Bool("json", false, "Print the elaborated topology as JSON instead of diagnostics")

	pflag.Parse()

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: --input flag is required")
		pflag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	if *check {
		runCheck(*inputFile, data, *indent)
		return
	}

	res, _ := tosca.Parse(data, *inputFile,
		tosca.WithLoader(fileLoader),
		tosca.WithStrict(*strict),
	)

	if *asJSON {
		out, err := res.ToJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling topology: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	} else {
		res.Sink.Fprint(os.Stdout)
	}

	var output string
	switch {
	case *inPlace:
		output = *inputFile
	case *outputFile != "":
		output = *outputFile
	}
	if output != "" {
		formatted, err := formatter.Format(data, *indent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting file: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(output, formatted, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Canonical form written to: %s\n", output)
	}

	if res.State == tosca.StateFailed {
		os.Exit(1)
	}
}

func runCheck(path string, data []byte, indent int) {
	formatted, err := formatter.Format(data, indent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting file: %v\n", err)
		os.Exit(1)
	}
	if string(data) != string(formatted) {
		fmt.Fprintf(os.Stderr, "%s is not in canonical form\n", path)
		os.Exit(1)
	}
	fmt.Printf("%s is in canonical form\n", path)
}

// fileLoader resolves an imports: entry relative to base's directory,
// the imports.Loader this CLI passes to tosca.Parse for files on local disk.
func fileLoader(ref, base string) (*yaml.Node, string, error) {
	dir := filepath.Dir(base)
	resolved := ref
	if !filepath.IsAbs(ref) {
		resolved = filepath.Join(dir, ref)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, "", err
	}
	var tree yaml.Node
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, "", err
	}
	return &tree, resolved, nil
}
