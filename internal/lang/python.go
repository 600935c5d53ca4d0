package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// parenTrimmer tidies parameter lists that were split over several lines.
var parenTrimmer = strings.NewReplacer("( ", "(", " )", ")")

// Python is the registered Python language.
var Python *Language

func init() {
	Python = &Language{
		Name:             "python",
		Extensions:       []string{".py", ".pyw", ".pyi"},
		lang:             python.GetLanguage(),
		FindMethodClass:  pythonFindMethodClass,
		ExtractSignature: pythonExtractSignature,
	}
	Languages["python"] = Python
}

func pythonFindMethodClass(funcNode *sitter.Node, source []byte) string {
	classNode := pythonFindEnclosingClass(funcNode)
	if classNode == nil {
		return ""
	}
	return NodeText(classNode.ChildByFieldName("name"), source)
}

func pythonFindEnclosingClass(funcNode *sitter.Node) *sitter.Node {
	parent := funcNode.Parent()
	if parent == nil {
		return nil
	}

	// Direct: func -> block -> class_definition
	if parent.Type() == "block" && parent.Parent() != nil && parent.Parent().Type() == "class_definition" {
		return parent.Parent()
	}

	// Decorated: func -> decorated_definition -> block -> class_definition
	if parent.Type() == "decorated_definition" {
		gp := parent.Parent()
		if gp != nil && gp.Type() == "block" && gp.Parent() != nil && gp.Parent().Type() == "class_definition" {
			return gp.Parent()
		}
	}

	return nil
}

func pythonExtractSignature(node *sitter.Node, source []byte) string {
	var prefix, name, params, returnType string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "async":
			prefix = "async "
		case "identifier":
			if name == "" {
				name = NodeText(child, source)
			}
		case "parameters":
			params = parenTrimmer.Replace(CollapseWhitespace(NodeText(child, source)))
		case "type":
			returnType = NodeText(child, source)
		}
	}
	sig := prefix + name + params
	if returnType != "" {
		sig += " -> " + returnType
	}
	return sig
}
