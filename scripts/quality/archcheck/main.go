// Command archcheck enforces the import layering between the top-level trees
// of the module. It exits non-zero when any package, including its test
// variants, crosses a forbidden edge.
package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const modulePrefix = "ex-chatflow/"

// listedPackage is the subset of `go list -json` output the checker reads.
type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

// violation is one forbidden import edge.
type violation struct {
	importer string
	imported string
	reason   string
}

func (v violation) String() string {
	return fmt.Sprintf("%s -> %s (%s)", v.importer, v.imported, v.reason)
}

func main() {
	os.Exit(run(os.Stdout, os.Stderr, goListPackages))
}

func run(stdout, stderr io.Writer, list func(stderr io.Writer) ([]listedPackage, error)) int {
	packages, err := list(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "arch-check: %v\n", err)
		return 1
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		_, _ = fmt.Fprintln(stdout, "arch-check: passed")
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "arch-check: %d architecture violations:\n", len(violations))
	for _, found := range violations {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", found)
	}

	return 1
}

// goListPackages lists every package of the module together with its test variants.
func goListPackages(stderr io.Writer) ([]listedPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	cmd.Stderr = stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("go list pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start go list: %w", err)
	}

	packages, decodeErr := decodePackages(out)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("go list -json -test ./...: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	return packages, nil
}

// decodePackages reads the concatenated JSON objects printed by go list.
func decodePackages(r io.Reader) ([]listedPackage, error) {
	decoder := json.NewDecoder(r)
	packages := make([]listedPackage, 0, 64)
	for decoder.More() {
		var pkg listedPackage
		if err := decoder.Decode(&pkg); err != nil {
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath != "" {
			packages = append(packages, pkg)
		}
	}

	return packages, nil
}

// collectViolations checks every import of every package, reporting each edge
// once in importer then imported order.
func collectViolations(packages []listedPackage) []violation {
	violations := make([]violation, 0)
	for _, pkg := range packages {
		for _, imported := range slices.Concat(pkg.Imports, pkg.TestImports, pkg.XTestImports) {
			if reason := violationReason(pkg.ImportPath, imported); reason != "" {
				violations = append(violations, violation{importer: pkg.ImportPath, imported: imported, reason: reason})
			}
		}
	}

	slices.SortFunc(violations, func(a, b violation) int {
		return cmp.Or(cmp.Compare(a.importer, b.importer), cmp.Compare(a.imported, b.imported))
	})

	return slices.Compact(violations)
}

// layerRule forbids packages under importer from importing packages under imported.
type layerRule struct {
	importer string
	imported string
}

var layerRules = []layerRule{
	{importer: "pkg/", imported: "internal/"},
	{importer: "pkg/", imported: "modules/"},
	{importer: "pkg/", imported: "cmd/"},
	{importer: "modules/", imported: "internal/"},
	{importer: "modules/", imported: "cmd/"},
	{importer: "internal/kernel", imported: "internal/storage/"},
	{importer: "internal/", imported: "cmd/"},
}

func violationReason(importer, imported string) string {
	if !strings.HasPrefix(importer, modulePrefix) || !strings.HasPrefix(imported, modulePrefix) {
		return ""
	}
	importer = strings.TrimPrefix(importer, modulePrefix)
	imported = strings.TrimPrefix(imported, modulePrefix)
	// go list -test reports test variants as "path [path.test]".
	if idx := strings.IndexByte(importer, ' '); idx >= 0 {
		importer = importer[:idx]
	}

	for _, rule := range layerRules {
		if strings.HasPrefix(importer, rule.importer) && strings.HasPrefix(imported, rule.imported) {
			return fmt.Sprintf("%s* must not import %s*", rule.importer, rule.imported)
		}
	}

	return ""
}
