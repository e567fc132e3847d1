// Command openapi-compat fails when the API description drops a path,
// operation, response code or parameter that a base description had. The
// revision defaults to the swagger document compiled into the server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"agora/docs"

	"gopkg.in/yaml.v3"
)

var supportedMethods = map[string]struct{}{
	"get":    {},
	"put":    {},
	"post":   {},
	"delete": {},
	"patch":  {},
}

type operation struct {
	Responses  map[string]struct{}
	Parameters map[string]bool // name@in -> required
}

type apiSpec struct {
	Paths map[string]map[string]operation
}

func main() {
	basePath := flag.String("base", "", "base swagger document (YAML or JSON)")
	revisionPath := flag.String("revision", "", "revision swagger document; defaults to the built-in one")
	flag.Parse()

	if strings.TrimSpace(*basePath) == "" {
		fmt.Fprintln(os.Stderr, "usage: openapi-compat -base <path> [-revision <path>]")
		os.Exit(2)
	}

	base, err := loadFile(*basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base spec: %v\n", err)
		os.Exit(1)
	}

	var revision apiSpec
	if *revisionPath == "" {
		revision, err = parseSpec([]byte(docs.SwaggerInfo.ReadDoc()))
	} else {
		revision, err = loadFile(*revisionPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load revision spec: %v\n", err)
		os.Exit(1)
	}

	if issues := compare(base, revision); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "- %s\n", issue)
		}
		os.Exit(1)
	}
	fmt.Println("openapi compatibility check passed")
}

func loadFile(path string) (apiSpec, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return apiSpec{}, err
	}
	return parseSpec(raw)
}

// parseSpec reads a swagger document. JSON is valid YAML, so one decoder
// serves both.
func parseSpec(raw []byte) (apiSpec, error) {
	var doc struct {
		Paths map[string]map[string]struct {
			Responses  map[string]any `yaml:"responses"`
			Parameters []struct {
				Name     string `yaml:"name"`
				In       string `yaml:"in"`
				Required bool   `yaml:"required"`
			} `yaml:"parameters"`
		} `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return apiSpec{}, err
	}
	if doc.Paths == nil {
		return apiSpec{}, errors.New("missing top-level paths field")
	}

	spec := apiSpec{Paths: make(map[string]map[string]operation)}
	for path, methods := range doc.Paths {
		ops := make(map[string]operation)
		for method, op := range methods {
			method = strings.ToLower(strings.TrimSpace(method))
			if _, ok := supportedMethods[method]; !ok {
				continue
			}
			parsed := operation{
				Responses:  make(map[string]struct{}, len(op.Responses)),
				Parameters: make(map[string]bool, len(op.Parameters)),
			}
			for code := range op.Responses {
				parsed.Responses[strings.ToLower(strings.TrimSpace(code))] = struct{}{}
			}
			for _, p := range op.Parameters {
				parsed.Parameters[p.Name+"@"+p.In] = p.Required
			}
			ops[method] = parsed
		}
		if len(ops) > 0 {
			spec.Paths[path] = ops
		}
	}
	return spec, nil
}

func compare(base, revision apiSpec) []string {
	var issues []string

	for path, baseOps := range base.Paths {
		revOps, ok := revision.Paths[path]
		if !ok {
			issues = append(issues, fmt.Sprintf("removed path: %s", path))
			continue
		}

		for method, baseOp := range baseOps {
			revOp, ok := revOps[method]
			if !ok {
				issues = append(issues, fmt.Sprintf("removed operation: %s %s", strings.ToUpper(method), path))
				continue
			}
			name := strings.ToUpper(method) + " " + path

			for code := range baseOp.Responses {
				if _, ok := revOp.Responses[code]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", name, strings.ToUpper(code)))
				}
			}
			for param := range baseOp.Parameters {
				if _, ok := revOp.Parameters[param]; !ok {
					issues = append(issues, fmt.Sprintf("removed parameter: %s %s", name, param))
				}
			}
			for param, required := range revOp.Parameters {
				if wasRequired, existed := baseOp.Parameters[param]; required && (!existed || !wasRequired) {
					issues = append(issues, fmt.Sprintf("new required parameter: %s %s", name, param))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues
}
