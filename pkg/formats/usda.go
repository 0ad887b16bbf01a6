package formats

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// USDA format errors.
var (
	ErrInvalidUSDAHeader = errors.New("invalid USDA header: expected '#usda'")
	ErrUSDASyntax        = errors.New("USDA syntax error")
)

// USDValueKind identifies the shape of a USDValue.
type USDValueKind int

// Value kinds.
const (
	USDNone USDValueKind = iota
	USDNumber
	USDString
	USDToken // bare identifier such as true or a token value
	USDTuple
	USDArray
	USDDict
	USDPath
	USDAsset
)

// USDValue is a parsed USDA value.
type USDValue struct {
	Kind  USDValueKind
	Num   float64
	Str   string
	Items []USDValue
	Dict  map[string]USDValue
}

// Float returns a numeric value.
func (v USDValue) Float() (float64, bool) {
	switch v.Kind {
	case USDNumber:
		return v.Num, true
	case USDToken:
		switch v.Str {
		case "true":
			return 1, true
		case "false":
			return 0, true
		}
	}
	return 0, false
}

// Floats flattens nested tuples and arrays of numbers.
func (v USDValue) Floats() []float64 {
	var out []float64
	var walk func(USDValue)
	walk = func(x USDValue) {
		switch x.Kind {
		case USDNumber:
			out = append(out, x.Num)
		case USDTuple, USDArray:
			for _, it := range x.Items {
				walk(it)
			}
		}
	}
	walk(v)
	return out
}

// Vec3 returns a three component tuple.
func (v USDValue) Vec3() ([3]float64, bool) {
	f := v.Floats()
	if v.Kind != USDTuple || len(f) != 3 {
		return [3]float64{}, false
	}
	return [3]float64{f[0], f[1], f[2]}, true
}

// Vec3s returns an array of three component tuples.
func (v USDValue) Vec3s() [][3]float64 {
	if v.Kind != USDArray {
		return nil
	}
	out := make([][3]float64, 0, len(v.Items))
	for _, it := range v.Items {
		if p, ok := it.Vec3(); ok {
			out = append(out, p)
		}
	}
	return out
}

// Ints returns the numbers of an array truncated to integers.
func (v USDValue) Ints() []int {
	f := v.Floats()
	out := make([]int, len(f))
	for i, x := range f {
		out[i] = int(x)
	}
	return out
}

// Strings returns the string and token items of an array.
func (v USDValue) Strings() []string {
	if v.Kind != USDArray {
		if v.Kind == USDString || v.Kind == USDToken {
			return []string{v.Str}
		}
		return nil
	}
	out := make([]string, 0, len(v.Items))
	for _, it := range v.Items {
		if it.Kind == USDString || it.Kind == USDToken {
			out = append(out, it.Str)
		}
	}
	return out
}

// Matrix returns a matrix4d value in row-major order.
func (v USDValue) Matrix() ([16]float64, bool) {
	var m [16]float64
	f := v.Floats()
	if v.Kind != USDTuple || len(f) != 16 {
		return m, false
	}
	copy(m[:], f)
	return m, true
}

// String returns the text of string, token, path and asset values.
func (v USDValue) String() string {
	switch v.Kind {
	case USDString, USDToken, USDPath, USDAsset:
		return v.Str
	case USDNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return ""
}

// USDTimeSample is one entry of a timeSamples dictionary.
type USDTimeSample struct {
	Time  float64
	Value USDValue
}

// USDAttribute is a prim attribute with its default value and time samples.
type USDAttribute struct {
	Name        string
	TypeName    string // includes [] for arrays
	Custom      bool
	Uniform     bool
	Default     USDValue
	HasDefault  bool
	TimeSamples []USDTimeSample // sorted by time
	Connections []string
	Metadata    map[string]USDValue
}

// IsAnimated reports whether the attribute carries more than one time sample.
func (a *USDAttribute) IsAnimated() bool {
	return len(a.TimeSamples) > 1
}

// Sample returns the value at time code t. Numeric values of matching shape
// are interpolated linearly between samples, others are held. Times outside
// the sampled range clamp to the first or last sample.
func (a *USDAttribute) Sample(t float64) (USDValue, bool) {
	n := len(a.TimeSamples)
	if n == 0 {
		return a.Default, a.HasDefault
	}
	if n == 1 || t <= a.TimeSamples[0].Time {
		return a.TimeSamples[0].Value, true
	}
	if t >= a.TimeSamples[n-1].Time {
		return a.TimeSamples[n-1].Value, true
	}
	i := sort.Search(n, func(i int) bool { return a.TimeSamples[i].Time > t }) - 1
	lo, hi := a.TimeSamples[i], a.TimeSamples[i+1]
	frac := (t - lo.Time) / (hi.Time - lo.Time)
	if v, ok := lerpUSDValue(lo.Value, hi.Value, frac); ok {
		return v, true
	}
	return lo.Value, true
}

func lerpUSDValue(a, b USDValue, t float64) (USDValue, bool) {
	if a.Kind != b.Kind {
		return USDValue{}, false
	}
	switch a.Kind {
	case USDNumber:
		return USDValue{Kind: USDNumber, Num: a.Num + (b.Num-a.Num)*t}, true
	case USDTuple, USDArray:
		if len(a.Items) != len(b.Items) {
			return USDValue{}, false
		}
		out := USDValue{Kind: a.Kind, Items: make([]USDValue, len(a.Items))}
		for i := range a.Items {
			v, ok := lerpUSDValue(a.Items[i], b.Items[i], t)
			if !ok {
				return USDValue{}, false
			}
			out.Items[i] = v
		}
		return out, true
	}
	return USDValue{}, false
}

// USDPrim is a prim spec with its properties and children.
type USDPrim struct {
	Specifier     string // def, over or class
	Type          string
	Name          string
	Path          string
	Parent        *USDPrim
	Metadata      map[string]USDValue
	Attributes    map[string]*USDAttribute
	AttrOrder     []string
	Relationships map[string][]string
	Children      []*USDPrim
}

// Attr returns the named attribute or nil.
func (p *USDPrim) Attr(name string) *USDAttribute {
	return p.Attributes[name]
}

func (p *USDPrim) attr(name string) *USDAttribute {
	if a, ok := p.Attributes[name]; ok {
		return a
	}
	a := &USDAttribute{Name: name}
	p.Attributes[name] = a
	p.AttrOrder = append(p.AttrOrder, name)
	return a
}

// USDLayer is a parsed .usda layer.
type USDLayer struct {
	Version  string
	Metadata map[string]USDValue
	Prims    []*USDPrim

	byPath map[string]*USDPrim
}

// Prim returns the prim at an absolute path such as "/World/cam".
func (l *USDLayer) Prim(path string) *USDPrim {
	return l.byPath[path]
}

// Traverse returns every prim depth-first in file order.
func (l *USDLayer) Traverse() []*USDPrim {
	var out []*USDPrim
	var walk func(*USDPrim)
	walk = func(p *USDPrim) {
		out = append(out, p)
		for _, c := range p.Children {
			walk(c)
		}
	}
	for _, p := range l.Prims {
		walk(p)
	}
	return out
}

// MetadataFloat returns a numeric layer metadata entry.
func (l *USDLayer) MetadataFloat(key string) (float64, bool) {
	v, ok := l.Metadata[key]
	if !ok {
		return 0, false
	}
	return v.Float()
}

// ParseUSDAFile parses a .usda file from disk.
func ParseUSDAFile(path string) (*USDLayer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading USDA file: %w", err)
	}
	return ParseUSDA(data)
}

// ParseUSDA parses the text of a single USDA layer. Composition arcs
// (sublayers, references, variants) are recorded as metadata and not followed.
func ParseUSDA(data []byte) (*USDLayer, error) {
	src := string(data)
	if !strings.HasPrefix(src, "#usda") {
		return nil, ErrInvalidUSDAHeader
	}
	line, rest, _ := strings.Cut(src, "\n")
	version := strings.TrimSpace(strings.TrimPrefix(line, "#usda"))

	toks, err := lexUSDA(rest)
	if err != nil {
		return nil, err
	}

	p := &usdaParser{toks: toks}
	layer := &USDLayer{
		Version:  version,
		Metadata: map[string]USDValue{},
		byPath:   map[string]*USDPrim{},
	}

	if p.peekPunct("(") {
		meta, err := p.metadata()
		if err != nil {
			return nil, err
		}
		layer.Metadata = meta
	}

	for !p.eof() {
		prim, err := p.prim(nil, layer)
		if err != nil {
			return nil, err
		}
		layer.Prims = append(layer.Prims, prim)
	}
	return layer, nil
}

type usdaTokKind int

const (
	tokIdent usdaTokKind = iota
	tokNumber
	tokString
	tokPath
	tokAsset
	tokPunct
)

type usdaTok struct {
	kind usdaTokKind
	text string
	line int
}

func lexUSDA(src string) ([]usdaTok, error) {
	var toks []usdaTok
	line := 2
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '"' || c == '\'':
			s, n, err := lexUSDAString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrUSDASyntax, line, err)
			}
			toks = append(toks, usdaTok{kind: tokString, text: s, line: line})
			line += strings.Count(src[i:i+n], "\n")
			i += n
		case c == '<':
			end := strings.IndexByte(src[i:], '>')
			if end < 0 {
				return nil, fmt.Errorf("%w: line %d: unterminated path", ErrUSDASyntax, line)
			}
			toks = append(toks, usdaTok{kind: tokPath, text: src[i+1 : i+end], line: line})
			i += end + 1
		case c == '@':
			delim := "@"
			if strings.HasPrefix(src[i:], "@@@") {
				delim = "@@@"
			}
			end := strings.Index(src[i+len(delim):], delim)
			if end < 0 {
				return nil, fmt.Errorf("%w: line %d: unterminated asset path", ErrUSDASyntax, line)
			}
			start := i + len(delim)
			toks = append(toks, usdaTok{kind: tokAsset, text: src[start : start+end], line: line})
			i = start + end + len(delim)
		case strings.ContainsRune("()[]{}=,:;", rune(c)):
			toks = append(toks, usdaTok{kind: tokPunct, text: string(c), line: line})
			i++
		case isUSDANumberStart(src[i:]):
			j := i + 1
			for j < len(src) && isUSDANumberChar(src[j]) {
				j++
			}
			text := src[i:j]
			if strings.HasPrefix(src[j:], "inf") {
				j += 3
				text = src[i:j]
			}
			toks = append(toks, usdaTok{kind: tokNumber, text: text, line: line})
			i = j
		case isUSDAIdentChar(c):
			j := i
			for j < len(src) && (isUSDAIdentChar(src[j]) || src[j] == ':' && j+1 < len(src) && isUSDAIdentChar(src[j+1]) || src[j] == '.') {
				j++
			}
			toks = append(toks, usdaTok{kind: tokIdent, text: src[i:j], line: line})
			i = j
		default:
			return nil, fmt.Errorf("%w: line %d: unexpected character %q", ErrUSDASyntax, line, c)
		}
	}
	return toks, nil
}

func lexUSDAString(s string) (string, int, error) {
	q := s[0]
	triple := strings.Repeat(string(q), 3)
	if strings.HasPrefix(s, triple) {
		end := strings.Index(s[3:], triple)
		if end < 0 {
			return "", 0, ErrUnterminatedString
		}
		return s[3 : 3+end], end + 6, nil
	}

	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", 0, ErrUnterminatedString
			}
			i++
			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(s[i])
			}
		case q:
			return sb.String(), i + 1, nil
		case '\n':
			return "", 0, ErrUnterminatedString
		default:
			sb.WriteByte(s[i])
		}
	}
	return "", 0, ErrUnterminatedString
}

func isUSDANumberStart(s string) bool {
	c := s[0]
	if c >= '0' && c <= '9' {
		return true
	}
	if (c == '-' || c == '+' || c == '.') && len(s) > 1 {
		n := s[1]
		return n >= '0' && n <= '9' || n == '.' || strings.HasPrefix(s[1:], "inf")
	}
	return false
}

func isUSDANumberChar(c byte) bool {
	return c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '-' || c == '+'
}

func isUSDAIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type usdaParser struct {
	toks []usdaTok
	pos  int
}

func (p *usdaParser) eof() bool { return p.pos >= len(p.toks) }

func (p *usdaParser) peek() usdaTok {
	if p.eof() {
		return usdaTok{kind: tokPunct, text: ""}
	}
	return p.toks[p.pos]
}

func (p *usdaParser) next() usdaTok {
	t := p.peek()
	p.pos++
	return t
}

func (p *usdaParser) peekPunct(s string) bool {
	t := p.peek()
	return !p.eof() && t.kind == tokPunct && t.text == s
}

func (p *usdaParser) expect(s string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != s {
		return p.errorf(t, "expected %q, got %q", s, t.text)
	}
	return nil
}

func (p *usdaParser) errorf(t usdaTok, format string, args ...any) error {
	if p.pos > len(p.toks) {
		return fmt.Errorf("%w: unexpected end of file: %s", ErrUSDASyntax, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: line %d: %s", ErrUSDASyntax, t.line, fmt.Sprintf(format, args...))
}

var usdaSpecifiers = map[string]bool{"def": true, "over": true, "class": true}

// prim parses "def Type "name" (meta) { body }".
func (p *usdaParser) prim(parent *USDPrim, layer *USDLayer) (*USDPrim, error) {
	t := p.next()
	if t.kind != tokIdent || !usdaSpecifiers[t.text] {
		return nil, p.errorf(t, "expected prim specifier, got %q", t.text)
	}
	prim := &USDPrim{
		Specifier:     t.text,
		Parent:        parent,
		Metadata:      map[string]USDValue{},
		Attributes:    map[string]*USDAttribute{},
		Relationships: map[string][]string{},
	}
	if p.peek().kind == tokIdent {
		prim.Type = p.next().text
	}
	name := p.next()
	if name.kind != tokString {
		return nil, p.errorf(name, "expected prim name, got %q", name.text)
	}
	prim.Name = name.text
	if parent != nil {
		prim.Path = parent.Path + "/" + prim.Name
	} else {
		prim.Path = "/" + prim.Name
	}
	layer.byPath[prim.Path] = prim

	if p.peekPunct("(") {
		meta, err := p.metadata()
		if err != nil {
			return nil, err
		}
		prim.Metadata = meta
	}

	if err := p.expect("{"); err != nil {
		return nil, err
	}
	for !p.peekPunct("}") {
		if p.eof() {
			return nil, p.errorf(p.peek(), "unterminated prim %s", prim.Path)
		}
		if err := p.primItem(prim, layer); err != nil {
			return nil, err
		}
	}
	p.next()
	return prim, nil
}

var usdaListOps = map[string]bool{"prepend": true, "append": true, "delete": true, "add": true, "reorder": true}

func (p *usdaParser) primItem(prim *USDPrim, layer *USDLayer) error {
	t := p.peek()
	if t.kind == tokPunct && t.text == ";" {
		p.next()
		return nil
	}
	if t.kind != tokIdent {
		return p.errorf(t, "unexpected %q in prim %s", t.text, prim.Path)
	}

	switch {
	case usdaSpecifiers[t.text]:
		child, err := p.prim(prim, layer)
		if err != nil {
			return err
		}
		prim.Children = append(prim.Children, child)
		return nil
	case t.text == "variantSet":
		p.next()
		p.next() // name
		if err := p.expect("="); err != nil {
			return err
		}
		return p.skipBraces()
	case t.text == "reorder" && p.pos+1 < len(p.toks) && p.toks[p.pos+1].text != "rel":
		p.next()
		p.next()
		if err := p.expect("="); err != nil {
			return err
		}
		_, err := p.value()
		return err
	}
	return p.property(prim)
}

func (p *usdaParser) property(prim *USDPrim) error {
	var custom, uniform bool
	listOp := ""
qualifiers:
	for {
		t := p.peek()
		switch {
		case t.kind == tokIdent && t.text == "custom":
			custom = true
		case t.kind == tokIdent && (t.text == "uniform" || t.text == "varying" || t.text == "config"):
			uniform = t.text == "uniform"
		case t.kind == tokIdent && usdaListOps[t.text]:
			listOp = t.text
		default:
			break qualifiers
		}
		p.next()
	}

	typeTok := p.next()
	if typeTok.kind != tokIdent {
		return p.errorf(typeTok, "expected property type, got %q", typeTok.text)
	}

	if typeTok.text == "rel" {
		nameTok := p.next()
		var targets []string
		if p.peekPunct("=") {
			p.next()
			v, err := p.value()
			if err != nil {
				return err
			}
			targets = usdPaths(v)
		}
		if p.peekPunct("(") {
			if _, err := p.metadata(); err != nil {
				return err
			}
		}
		if listOp != "delete" {
			prim.Relationships[nameTok.text] = append(prim.Relationships[nameTok.text], targets...)
		}
		return nil
	}

	typeName := typeTok.text
	if p.peekPunct("[") {
		p.next()
		if err := p.expect("]"); err != nil {
			return err
		}
		typeName += "[]"
	}

	nameTok := p.next()
	if nameTok.kind != tokIdent {
		return p.errorf(nameTok, "expected attribute name, got %q", nameTok.text)
	}
	name, suffix := nameTok.text, ""
	for _, s := range []string{".timeSamples", ".connect", ".spline"} {
		if strings.HasSuffix(name, s) {
			name, suffix = strings.TrimSuffix(name, s), s
			break
		}
	}

	attr := prim.attr(name)
	attr.TypeName = typeName
	attr.Custom = attr.Custom || custom
	attr.Uniform = attr.Uniform || uniform

	if p.peekPunct("=") {
		p.next()
		switch suffix {
		case ".timeSamples":
			samples, err := p.timeSamples()
			if err != nil {
				return err
			}
			attr.TimeSamples = samples
		case ".spline":
			if err := p.skipBraces(); err != nil {
				return err
			}
		default:
			v, err := p.value()
			if err != nil {
				return err
			}
			if suffix == ".connect" {
				attr.Connections = usdPaths(v)
			} else {
				attr.Default = v
				attr.HasDefault = v.Kind != USDNone
			}
		}
	}

	if p.peekPunct("(") {
		meta, err := p.metadata()
		if err != nil {
			return err
		}
		attr.Metadata = meta
	}
	return nil
}

func usdPaths(v USDValue) []string {
	switch v.Kind {
	case USDPath:
		return []string{v.Str}
	case USDArray:
		var out []string
		for _, it := range v.Items {
			if it.Kind == USDPath {
				out = append(out, it.Str)
			}
		}
		return out
	}
	return nil
}

func (p *usdaParser) timeSamples() ([]USDTimeSample, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var out []USDTimeSample
	for !p.peekPunct("}") {
		t := p.next()
		if t.kind != tokNumber {
			return nil, p.errorf(t, "expected time code, got %q", t.text)
		}
		tc, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "bad time code %q", t.text)
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, USDTimeSample{Time: tc, Value: v})
		if p.peekPunct(",") {
			p.next()
		}
	}
	p.next()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// metadata parses "( key = value ... )". A bare string is stored under "doc".
func (p *usdaParser) metadata() (map[string]USDValue, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	meta := map[string]USDValue{}
	for !p.peekPunct(")") {
		if p.eof() {
			return nil, p.errorf(p.peek(), "unterminated metadata")
		}
		t := p.next()
		switch {
		case t.kind == tokString:
			meta["doc"] = USDValue{Kind: USDString, Str: t.text}
			continue
		case t.kind == tokPunct && (t.text == ";" || t.text == ","):
			continue
		case t.kind != tokIdent:
			return nil, p.errorf(t, "unexpected %q in metadata", t.text)
		}
		key := t.text
		if usdaListOps[key] && p.peek().kind == tokIdent {
			key = p.next().text
		}
		if p.peek().kind == tokIdent && !p.peekPunct("=") {
			// typed entry such as "dictionary customData"
			key = p.next().text
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		meta[key] = v
	}
	p.next()
	return meta, nil
}

func (p *usdaParser) value() (USDValue, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := parseUSDANumber(t.text)
		if err != nil {
			return USDValue{}, p.errorf(t, "bad number %q", t.text)
		}
		return USDValue{Kind: USDNumber, Num: f}, nil
	case tokString:
		return USDValue{Kind: USDString, Str: t.text}, nil
	case tokPath:
		return USDValue{Kind: USDPath, Str: t.text}, nil
	case tokAsset:
		v := USDValue{Kind: USDAsset, Str: t.text}
		if !p.eof() && p.peek().kind == tokPath {
			// reference target prim
			v.Items = []USDValue{{Kind: USDPath, Str: p.next().text}}
		}
		return v, nil
	case tokIdent:
		switch t.text {
		case "None":
			return USDValue{Kind: USDNone}, nil
		case "inf", "nan":
			f, _ := parseUSDANumber(t.text)
			return USDValue{Kind: USDNumber, Num: f}, nil
		}
		return USDValue{Kind: USDToken, Str: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			items, err := p.items(")")
			return USDValue{Kind: USDTuple, Items: items}, err
		case "[":
			items, err := p.items("]")
			return USDValue{Kind: USDArray, Items: items}, err
		case "{":
			return p.dict()
		}
	}
	return USDValue{}, p.errorf(t, "unexpected %q in value", t.text)
}

func (p *usdaParser) items(closer string) ([]USDValue, error) {
	var out []USDValue
	for !p.peekPunct(closer) {
		if p.eof() {
			return nil, p.errorf(p.peek(), "expected %q", closer)
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if p.peekPunct(",") {
			p.next()
		}
	}
	p.next()
	return out, nil
}

// dict parses the body of "{ type name = value ... }" after the opening brace.
func (p *usdaParser) dict() (USDValue, error) {
	d := USDValue{Kind: USDDict, Dict: map[string]USDValue{}}
	for !p.peekPunct("}") {
		if p.eof() {
			return USDValue{}, p.errorf(p.peek(), "unterminated dictionary")
		}
		t := p.next()
		if t.kind == tokPunct && (t.text == ";" || t.text == ",") {
			continue
		}
		key := t
		if p.peek().kind == tokIdent || p.peek().kind == tokString {
			key = p.next()
		}
		if p.peekPunct("[") {
			p.next()
			if err := p.expect("]"); err != nil {
				return USDValue{}, err
			}
			key = p.next()
		}
		if err := p.expect("="); err != nil {
			return USDValue{}, err
		}
		v, err := p.value()
		if err != nil {
			return USDValue{}, err
		}
		d.Dict[key.text] = v
	}
	p.next()
	return d, nil
}

func (p *usdaParser) skipBraces() error {
	if err := p.expect("{"); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		if p.eof() {
			return p.errorf(p.peek(), "unterminated block")
		}
		t := p.next()
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "{":
			depth++
		case "}":
			depth--
		}
	}
	return nil
}

func parseUSDANumber(s string) (float64, error) {
	switch s {
	case "inf", "+inf":
		s = "Inf"
	case "-inf":
		s = "-Inf"
	case "nan":
		s = "NaN"
	}
	return strconv.ParseFloat(s, 64)
}
