package formats

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Maya ASCII format errors.
var (
	ErrUnterminatedStatement = errors.New("unterminated Maya ASCII statement")
	ErrUnterminatedString    = errors.New("unterminated string literal")
)

// Token is a single word of a Maya ASCII statement.
type Token struct {
	Text   string
	Quoted bool
}

// Float parses the token as a number.
func (t Token) Float() (float64, error) {
	return strconv.ParseFloat(t.Text, 64)
}

// MASetAttr is one setAttr statement.
type MASetAttr struct {
	Name   string // as written, e.g. ".t" or ".vt[0:7]"
	Type   string // value of -type, empty for plain numeric values
	Size   int    // value of -s, 0 when absent
	Values []Token
}

// Base returns the attribute name without the leading dot and index range.
func (a MASetAttr) Base() string {
	name := strings.TrimPrefix(a.Name, ".")
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

// Range returns the index range of the attribute name. A single index
// returns start == end. ok is false when no index is present.
func (a MASetAttr) Range() (start, end int, ok bool) {
	return ParseIndexRange(a.Name)
}

// Floats returns every numeric value in order, skipping words such as the
// "f" and "mu" markers of polyFaces data.
func (a MASetAttr) Floats() []float64 {
	out := make([]float64, 0, len(a.Values))
	for _, v := range a.Values {
		if v.Quoted {
			continue
		}
		f, err := v.Float()
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// String returns the first value.
func (a MASetAttr) String() string {
	if len(a.Values) == 0 {
		return ""
	}
	return a.Values[0].Text
}

// MANode is a node created by createNode, plus the attributes set on it.
type MANode struct {
	Type    string
	Name    string
	Parent  string
	Shared  bool
	Attrs   []MASetAttr
	Aliases map[string]string // alias name -> attribute
}

// Attr returns the last setAttr whose name matches, with or without the
// leading dot. Index ranges are part of the name.
func (n *MANode) Attr(name string) (MASetAttr, bool) {
	name = strings.TrimPrefix(name, ".")
	for i := len(n.Attrs) - 1; i >= 0; i-- {
		if strings.TrimPrefix(n.Attrs[i].Name, ".") == name {
			return n.Attrs[i], true
		}
	}
	return MASetAttr{}, false
}

// AttrsNamed returns every setAttr whose base name matches, in file order.
// Array attributes are often written in several index-range chunks.
func (n *MANode) AttrsNamed(base string) []MASetAttr {
	var out []MASetAttr
	for _, a := range n.Attrs {
		if a.Base() == base {
			out = append(out, a)
		}
	}
	return out
}

// Float returns the first numeric value of the named attribute.
func (n *MANode) Float(name string, fallback float64) float64 {
	a, ok := n.Attr(name)
	if !ok {
		return fallback
	}
	vals := a.Floats()
	if len(vals) == 0 {
		return fallback
	}
	return vals[0]
}

// MAConnection is one connectAttr statement.
type MAConnection struct {
	SrcNode string
	SrcAttr string
	DstNode string
	DstAttr string
}

// MARequire is one requires statement.
type MARequire struct {
	Plugin  string
	Version string
}

// MAFile is a parsed Maya ASCII scene.
type MAFile struct {
	Requires    []MARequire
	Units       map[string]string // "linear", "angle", "time"
	Playback    map[string]string // playbackOptions flag (without dash) -> value
	FileInfo    map[string]string
	Nodes       []*MANode
	Connections []MAConnection

	byName map[string]*MANode
}

// Node returns the node with the given short name, or nil.
func (f *MAFile) Node(name string) *MANode {
	return f.byName[shortName(name)]
}

// NodesOfType returns every node of the given type in file order.
func (f *MAFile) NodesOfType(typ string) []*MANode {
	var out []*MANode
	for _, n := range f.Nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// Children returns the nodes parented directly under name.
func (f *MAFile) Children(name string) []*MANode {
	var out []*MANode
	for _, n := range f.Nodes {
		if n.Parent == name {
			out = append(out, n)
		}
	}
	return out
}

// ConnectionsTo returns connections whose destination is node.attr.
// An empty attr matches any attribute of node.
func (f *MAFile) ConnectionsTo(node, attr string) []MAConnection {
	var out []MAConnection
	for _, c := range f.Connections {
		if c.DstNode == node && (attr == "" || c.DstAttr == attr) {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsFrom returns connections whose source is node.
func (f *MAFile) ConnectionsFrom(node string) []MAConnection {
	var out []MAConnection
	for _, c := range f.Connections {
		if c.SrcNode == node {
			out = append(out, c)
		}
	}
	return out
}

// ParseMAFile parses a Maya ASCII file from disk.
func ParseMAFile(path string) (*MAFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading Maya ASCII file: %w", err)
	}
	return ParseMA(data)
}

// ParseMA parses Maya ASCII text. Commands other than the scene-description
// subset (createNode, setAttr, connectAttr, requires, currentUnit,
// playbackOptions, fileInfo, aliasAttr, select) are skipped.
func ParseMA(data []byte) (*MAFile, error) {
	stmts, err := splitMAStatements(string(data))
	if err != nil {
		return nil, err
	}

	f := &MAFile{
		Units:    map[string]string{},
		Playback: map[string]string{},
		FileInfo: map[string]string{},
		byName:   map[string]*MANode{},
	}

	var current *MANode
	for i, st := range stmts {
		if len(st) == 0 {
			continue
		}
		args := st[1:]
		switch st[0].Text {
		case "createNode":
			current = f.createNode(args)
		case "select":
			current = f.selectNode(args, current)
		case "setAttr":
			if err := f.setAttr(args, current); err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
		case "connectAttr":
			f.connectAttr(args)
		case "aliasAttr":
			if current != nil && len(args) >= 2 {
				if current.Aliases == nil {
					current.Aliases = map[string]string{}
				}
				current.Aliases[args[0].Text] = strings.TrimPrefix(args[1].Text, ".")
			}
		case "requires":
			var pos []string
			for j := 0; j < len(args); j++ {
				if isMAFlag(args[j]) {
					j++
					continue
				}
				pos = append(pos, args[j].Text)
			}
			if len(pos) > 0 {
				r := MARequire{Plugin: pos[0]}
				if len(pos) > 1 {
					r.Version = pos[1]
				}
				f.Requires = append(f.Requires, r)
			}
		case "currentUnit":
			for j := 0; j+1 < len(args); j += 2 {
				switch args[j].Text {
				case "-l", "-linear":
					f.Units["linear"] = args[j+1].Text
				case "-a", "-angle":
					f.Units["angle"] = args[j+1].Text
				case "-t", "-time":
					f.Units["time"] = args[j+1].Text
				}
			}
		case "playbackOptions":
			for j := 0; j+1 < len(args); j += 2 {
				if isMAFlag(args[j]) {
					f.Playback[strings.TrimPrefix(args[j].Text, "-")] = args[j+1].Text
				}
			}
		case "fileInfo":
			if len(args) >= 2 {
				f.FileInfo[args[0].Text] = args[1].Text
			}
		}
	}

	return f, nil
}

func (f *MAFile) node(name string) *MANode {
	name = shortName(name)
	if n, ok := f.byName[name]; ok {
		return n
	}
	n := &MANode{Name: name}
	f.byName[name] = n
	f.Nodes = append(f.Nodes, n)
	return n
}

func (f *MAFile) createNode(args []Token) *MANode {
	var typ, name, parent string
	shared := false
	for j := 0; j < len(args); j++ {
		a := args[j]
		if !isMAFlag(a) {
			if typ == "" {
				typ = a.Text
			}
			continue
		}
		switch a.Text {
		case "-n", "-name":
			if j+1 < len(args) {
				name = args[j+1].Text
				j++
			}
		case "-p", "-parent":
			if j+1 < len(args) {
				parent = shortName(args[j+1].Text)
				j++
			}
		case "-s", "-shared":
			shared = true
		}
	}
	if name == "" {
		name = fmt.Sprintf("%s%d", typ, len(f.Nodes)+1)
	}

	n := f.node(name)
	n.Type = typ
	n.Parent = parent
	n.Shared = shared
	return n
}

func (f *MAFile) selectNode(args []Token, current *MANode) *MANode {
	for _, a := range args {
		if !isMAFlag(a) {
			return f.node(strings.TrimPrefix(a.Text, ":"))
		}
	}
	return current
}

// setAttr flags that consume the following word.
var maValueFlags = map[string]bool{
	"-k": true, "-keyable": true,
	"-l": true, "-lock": true,
	"-cb": true, "-channelBox": true,
	"-s": true, "-size": true,
	"-type": true, "-typ": true,
	"-ch": true, "-caching": true,
}

func (f *MAFile) setAttr(args []Token, current *MANode) error {
	var attr MASetAttr
	target := current
	named := false
	for j := 0; j < len(args); j++ {
		a := args[j]
		if len(attr.Values) == 0 && isMAFlag(a) {
			if maValueFlags[a.Text] && j+1 < len(args) {
				switch a.Text {
				case "-type", "-typ":
					attr.Type = args[j+1].Text
				case "-s", "-size":
					attr.Size, _ = strconv.Atoi(args[j+1].Text)
				}
				j++
			}
			continue
		}
		if !named {
			named = true
			name := a.Text
			if !strings.HasPrefix(name, ".") {
				nodeName, attrName, ok := strings.Cut(name, ".")
				if !ok {
					return fmt.Errorf("setAttr %q: missing attribute name", name)
				}
				target = f.node(strings.TrimPrefix(nodeName, ":"))
				name = "." + attrName
			}
			attr.Name = name
			continue
		}
		attr.Values = append(attr.Values, a)
	}

	if !named {
		return errors.New("setAttr without attribute name")
	}
	if target == nil {
		return fmt.Errorf("setAttr %q before any createNode", attr.Name)
	}
	target.Attrs = append(target.Attrs, attr)
	return nil
}

func (f *MAFile) connectAttr(args []Token) {
	var plugs []string
	for _, a := range args {
		if isMAFlag(a) {
			continue
		}
		plugs = append(plugs, a.Text)
	}
	if len(plugs) < 2 {
		return
	}
	srcNode, srcAttr, _ := strings.Cut(strings.TrimPrefix(plugs[0], ":"), ".")
	dstNode, dstAttr, _ := strings.Cut(strings.TrimPrefix(plugs[1], ":"), ".")
	f.Connections = append(f.Connections, MAConnection{
		SrcNode: shortName(srcNode),
		SrcAttr: srcAttr,
		DstNode: shortName(dstNode),
		DstAttr: dstAttr,
	})
}

// ParseIndexRange parses the trailing "[a]" or "[a:b]" of an attribute name.
func ParseIndexRange(name string) (start, end int, ok bool) {
	open := strings.LastIndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return 0, 0, false
	}
	inner := name[open+1 : len(name)-1]
	lo, hi, isRange := strings.Cut(inner, ":")
	start, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, false
	}
	if !isRange {
		return start, start, true
	}
	end, err = strconv.Atoi(hi)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// shortName strips a DAG path down to its leaf.
func shortName(name string) string {
	if i := strings.LastIndexByte(name, '|'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func isMAFlag(t Token) bool {
	if t.Quoted || len(t.Text) < 2 || t.Text[0] != '-' {
		return false
	}
	c := t.Text[1]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// splitMAStatements tokenizes the text into ;-terminated statements.
func splitMAStatements(src string) ([][]Token, error) {
	var (
		stmts  [][]Token
		cur    []Token
		word   strings.Builder
		inWord bool
	)
	flush := func() {
		if inWord {
			cur = append(cur, Token{Text: word.String()})
			word.Reset()
			inWord = false
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/' && !inWord:
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '"':
			flush()
			var sb strings.Builder
			i++
			closed := false
			for ; i < len(src); i++ {
				if src[i] == '\\' && i+1 < len(src) {
					i++
					switch src[i] {
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					default:
						sb.WriteByte(src[i])
					}
					continue
				}
				if src[i] == '"' {
					closed = true
					break
				}
				sb.WriteByte(src[i])
			}
			if !closed {
				return nil, ErrUnterminatedString
			}
			cur = append(cur, Token{Text: sb.String(), Quoted: true})
		case c == ';':
			flush()
			stmts = append(stmts, cur)
			cur = nil
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
		default:
			word.WriteByte(c)
			inWord = true
		}
	}
	flush()
	if len(cur) > 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnterminatedStatement, cur[0].Text)
	}
	return stmts, nil
}
