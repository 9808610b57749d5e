package parser

// BlockType is the keyword that follows the opening fence of an action block.
type BlockType string

const (
	TypeWriteFile     BlockType = "write_file"
	TypeBash          BlockType = "bash"
	TypePlan          BlockType = "plan"
	TypeClarification BlockType = "clarification"
	TypeFiles         BlockType = "files"
	TypeSummary       BlockType = "summary"
	TypeDoneSummary   BlockType = "done_summary"
	TypeManual        BlockType = "manual"
	TypeVerifyRun     BlockType = "verify_run"
)

// Block is one action block extracted from a model reply.
type Block struct {
	Type    BlockType
	Header  string
	Attrs   map[string]string
	Content string
}

// Path returns the target path of a write_file block.
func (b Block) Path() string {
	return b.Attrs["path"]
}

// Blocks is the ordered list of blocks found in one reply.
type Blocks []Block

func (bs Blocks) First(t BlockType) (Block, bool) {
	for _, b := range bs {
		if b.Type == t {
			return b, true
		}
	}
	return Block{}, false
}

func (bs Blocks) All(t BlockType) []Block {
	var out []Block
	for _, b := range bs {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out
}

func (bs Blocks) Has(t BlockType) bool {
	_, ok := bs.First(t)
	return ok
}
