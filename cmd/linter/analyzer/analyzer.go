// Package analyzer implements the exitcheck analyzer. It reports usage of
// panic anywhere in the codebase, and calls to log.Fatal or os.Exit outside
// of the main function of package main.
package analyzer

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/ast/astutil"
)

var Analyzer = &analysis.Analyzer{
	Name: "exitcheck",
	Doc:  "check for usage of panic, log.Fatal and os.Exit outside of main.main",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	panicObj := types.Universe.Lookup("panic")

	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			callExpr, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			var obj types.Object
			switch v := callExpr.Fun.(type) {
			case *ast.Ident:
				obj = pass.TypesInfo.ObjectOf(v)
			case *ast.SelectorExpr:
				obj = pass.TypesInfo.ObjectOf(v.Sel)
			}

			if obj == nil {
				return true
			}

			if obj == panicObj {
				pass.Reportf(callExpr.Pos(), "panic should not be used in production code")
				return true
			}

			if isLogFatal(obj) {
				if pass.Pkg.Name() != "main" || !isInMainFunc(file, pass.Fset, n) {
					pass.Reportf(callExpr.Pos(), "log.Fatal should only be used in main.main function")
				}
				return true
			}

			if isOsExit(obj) {
				if pass.Pkg.Name() != "main" || !isInMainFunc(file, pass.Fset, n) {
					pass.Reportf(callExpr.Pos(), "os.Exit should only be used in main.main function")
				}
				return true
			}

			return true
		})
	}

	return nil, nil
}

// isLogFatal reports whether obj is log.Fatal, log.Fatalf or log.Fatalln.
func isLogFatal(obj types.Object) bool {
	fn, ok := obj.(*types.Func)
	if !ok {
		return false
	}
	pkg := fn.Pkg()
	if pkg == nil || pkg.Path() != "log" {
		return false
	}
	return fn.Name() == "Fatal" || fn.Name() == "Fatalf" || fn.Name() == "Fatalln"
}

// isOsExit reports whether obj is os.Exit.
func isOsExit(obj types.Object) bool {
	fn, ok := obj.(*types.Func)
	if !ok {
		return false
	}
	pkg := fn.Pkg()
	if pkg == nil || pkg.Path() != "os" {
		return false
	}
	return fn.Name() == "Exit"
}

// isInMainFunc reports whether node sits inside a function named main.
func isInMainFunc(file *ast.File, _ *token.FileSet, node ast.Node) bool {
	path, _ := astutil.PathEnclosingInterval(file, node.Pos(), node.End())
	for _, n := range path {
		if fn, ok := n.(*ast.FuncDecl); ok && fn.Name.Name == "main" {
			return true
		}
	}
	return false
}
