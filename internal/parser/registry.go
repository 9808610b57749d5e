package parser

import (
	"fmt"
	"strings"
)

// BlockDefinition describes one block type of the reply grammar.
type BlockDefinition struct {
	Type        BlockType
	Description string
	// Required lists header attributes the block cannot do without.
	Required []string
}

type BlockRegistry struct {
	Blocks    []BlockDefinition
	blocksMap map[BlockType]BlockDefinition
}

func NewBlockRegistry(defs ...BlockDefinition) *BlockRegistry {
	m := make(map[BlockType]BlockDefinition, len(defs))
	for _, d := range defs {
		m[d.Type] = d
	}
	return &BlockRegistry{Blocks: defs, blocksMap: m}
}

var registry = NewBlockRegistry(
	BlockDefinition{Type: TypeWriteFile, Required: []string{"path"},
		Description: "the complete new content of the file at path, ended by the boundary line"},
	BlockDefinition{Type: TypeBash, Description: "shell commands run from the project root, one per line, stopping at the first error"},
	BlockDefinition{Type: TypePlan, Description: "a short numbered plan, saved for the user"},
	BlockDefinition{Type: TypeFiles, Description: "relative paths whose full content you need, one per line"},
	BlockDefinition{Type: TypeClarification, Description: "one question for the user when the goal is ambiguous"},
	BlockDefinition{Type: TypeSummary, Description: "your strategy for this step in one line"},
	BlockDefinition{Type: TypeDoneSummary, Description: "what was done, once the goal is complete"},
	BlockDefinition{Type: TypeManual, Description: "steps only a human can do, such as filling in secrets"},
	BlockDefinition{Type: TypeVerifyRun, Description: "empty; runs the verification command after this change"},
)

// DefaultRegistry is the grammar ParseBlocks understands.
func DefaultRegistry() *BlockRegistry {
	return registry
}

func (r *BlockRegistry) GetDefinition(t BlockType) (BlockDefinition, bool) {
	def, found := r.blocksMap[t]
	return def, found
}

// GeneratePromptPart lists the block types for the model.
func (r *BlockRegistry) GeneratePromptPart() string {
	var sb strings.Builder
	sb.WriteString("AVAILABLE BLOCKS:\n")
	for _, d := range r.Blocks {
		if len(d.Required) > 0 {
			fmt.Fprintf(&sb, "- `%s` (header requires %s): %s\n", d.Type, strings.Join(d.Required, ", "), d.Description)
			continue
		}
		fmt.Fprintf(&sb, "- `%s`: %s\n", d.Type, d.Description)
	}
	return sb.String()
}

// ValidateBlock checks a parsed block against its definition.
func (r *BlockRegistry) ValidateBlock(b Block) error {
	def, found := r.GetDefinition(b.Type)
	if !found {
		return fmt.Errorf("block type %q is not defined", b.Type)
	}
	for _, key := range def.Required {
		if strings.TrimSpace(b.Attrs[key]) == "" {
			return fmt.Errorf("%s block is missing required header attribute %q", b.Type, key)
		}
	}
	return nil
}
