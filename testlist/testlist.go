package testlist

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

// recursiveSuffix is the go tool's "this package and everything below it" pattern
const recursiveSuffix = "/..."

// PackageDir maps a package pattern to a directory under workingDir.
// Both relative patterns ("./suites/api/...") and module-qualified import paths are accepted.
func PackageDir(pkgPath string, workingDir string) (string, error) {
	pkgPath = strings.TrimSuffix(pkgPath, recursiveSuffix)
	if pkgPath == "..." {
		pkgPath = "."
	}

	var relPath string
	if pkgPath == "." || strings.HasPrefix(pkgPath, "./") {
		relPath = strings.TrimPrefix(pkgPath, "./")
	} else {
		moduleName, err := ModulePath(workingDir)
		if err != nil {
			return "", err
		}

		// Verify that the package is indeed in the module
		if pkgPath != moduleName && !strings.HasPrefix(pkgPath, moduleName+"/") {
			return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
		}

		relPath = strings.TrimPrefix(strings.TrimPrefix(pkgPath, moduleName), "/")
	}
	if relPath == "" {
		relPath = "."
	}
	return filepath.Join(workingDir, relPath), nil
}

// ModulePath reads the module path from workingDir/go.mod
func ModulePath(workingDir string) (string, error) {
	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}

	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}
	return modFile.Module.Mod.Path, nil
}

// FindTestFunctions takes a package path and working directory, and returns a list of test function names.
// A pattern ending in "/..." also searches every directory below the package.
func FindTestFunctions(pkgPath string, workingDir string) ([]string, error) {
	var testFunctions []string
	err := walkPackageDirs(pkgPath, workingDir, func(dir string) error {
		found, err := findInDir(dir)
		if err != nil {
			return err
		}
		testFunctions = append(testFunctions, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return testFunctions, nil
}

// FindGoPackages returns the directories matched by pkgPath that hold at least one .go file,
// i.e. the packages go test would build for the pattern.
func FindGoPackages(pkgPath string, workingDir string) ([]string, error) {
	var dirs []string
	err := walkPackageDirs(pkgPath, workingDir, func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read package directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".go") {
				dirs = append(dirs, dir)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

// walkPackageDirs calls fn for the package directory and, for "/..." patterns, every directory below it
func walkPackageDirs(pkgPath string, workingDir string, fn func(dir string) error) error {
	pkgDir, err := PackageDir(pkgPath, workingDir)
	if err != nil {
		return err
	}

	if !strings.HasSuffix(pkgPath, recursiveSuffix) {
		return fn(pkgDir)
	}

	err = filepath.WalkDir(pkgDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		// Skip the same directories the go tool ignores
		name := d.Name()
		if path != pkgDir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata") {
			return filepath.SkipDir
		}
		return fn(path)
	})
	if err != nil {
		return fmt.Errorf("failed to walk package directory: %w", err)
	}
	return nil
}

func findInDir(pkgDir string) ([]string, error) {
	// Find all test files in the package directory
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var testFunctions []string
	fset := token.NewFileSet()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		// Traverse top-level declarations in search of test functions
		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil {
				continue
			}

			// Those functions have to start with "Test" and not be "TestMain"
			if strings.HasPrefix(funcDecl.Name.Name, "Test") && funcDecl.Name.Name != "TestMain" {
				testFunctions = append(testFunctions, funcDecl.Name.Name)
			}
		}
	}

	sort.Strings(testFunctions)
	return testFunctions, nil
}
