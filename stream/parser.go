// Package stream classifies an incrementally delivered model response into
// prose, fenced code and reasoning segments.
//
// The parser only ever classifies complete, newline-terminated lines, so the
// resulting segment list does not depend on how the response was fragmented
// in transit. Partial trailing lines are held back until their terminator
// arrives or the stream finishes.
package stream

import (
	"regexp"
	"strings"
)

// Kind is the classification of a Segment.
type Kind int

const (
	KindProse Kind = iota
	KindCode
	KindReasoning
)

func (k Kind) String() string {
	switch k {
	case KindProse:
		return "prose"
	case KindCode:
		return "code"
	case KindReasoning:
		return "reasoning"
	default:
		return "unknown"
	}
}

// Segment is one classified piece of a response.
type Segment struct {
	Kind     Kind
	Text     string
	Language string
	// Unterminated is set on a code block that was still open when the
	// stream ended.
	Unterminated bool
}

// Sink receives segments while the stream is still being parsed.
// Implementations render; they must not retain the Parser.
type Sink interface {
	OnProse(text string)
	OnCodeStart(language string)
	OnCodeLine(line string)
	OnCodeEnd(block Segment)
	OnReasoning(text string)
	OnReasoningEnd()
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnProse(string) {}
func (NopSink) OnCodeStart(string) {}
func (NopSink) OnCodeLine(string) {}
func (NopSink) OnCodeEnd(Segment) {}
func (NopSink) OnReasoning(string) {}
func (NopSink) OnReasoningEnd() {}

type mode int

const (
	modeNormal mode = iota
	modeReasoning
	modeCode
)

// fenceRe matches a standalone fence line: indentation, a run of at least
// three backticks or tildes, and at most one info token.
var fenceRe = regexp.MustCompile("^\\s*(`{3,}|~{3,})[ \\t]*([A-Za-z0-9_+\\-.#]*)[ \\t]*$")

type fence struct {
	char   byte
	length int
	info   string
}

// parseFence reports whether line is a fence line. The run must consist of a
// single repeated character.
func parseFence(line string) (fence, bool) {
	m := fenceRe.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
	if m == nil {
		return fence{}, false
	}
	return fence{char: m[1][0], length: len(m[1]), info: m[2]}, true
}

// Parser is the per-call stream state machine. The zero value is not
// usable; call NewParser.
type Parser struct {
	sink Sink
	mode mode

	pending strings.Builder // partial line awaiting its newline
	prose   strings.Builder // complete prose lines not yet flushed
	raw     strings.Builder

	reasoning         strings.Builder
	deferredReasoning strings.Builder // reasoning received inside a code block

	fenceChar byte
	fenceLen  int
	language  string
	depth     int
	code      strings.Builder

	segments []Segment
	finished bool
}

// NewParser creates a parser emitting live updates to sink. A nil sink is
// replaced with NopSink.
func NewParser(sink Sink) *Parser {
	if sink == nil {
		sink = NopSink{}
	}
	return &Parser{sink: sink}
}

// Feed consumes a fragment of the main content channel.
func (p *Parser) Feed(fragment string) {
	if p.finished || fragment == "" {
		return
	}
	if p.mode == modeReasoning {
		p.closeReasoning()
	}
	p.raw.WriteString(fragment)
	p.pending.WriteString(fragment)

	buf := p.pending.String()
	idx := strings.LastIndexByte(buf, '\n')
	if idx < 0 {
		return
	}
	complete, rest := buf[:idx], buf[idx+1:]
	p.pending.Reset()
	p.pending.WriteString(rest)

	for _, line := range strings.Split(complete, "\n") {
		p.processLine(line)
	}
	p.flushProse()
}

// FeedReasoning consumes a fragment of the reasoning channel.
func (p *Parser) FeedReasoning(text string) {
	if p.finished || text == "" {
		return
	}
	if p.mode == modeCode {
		p.deferredReasoning.WriteString(text)
		return
	}
	if p.mode != modeReasoning {
		p.flushProse()
		p.mode = modeReasoning
		p.reasoning.Reset()
	}
	p.reasoning.WriteString(text)
	p.sink.OnReasoning(text)
}

// Finish ends the stream. A held partial line is classified as if it were
// terminated; a code block still open is emitted as unterminated.
// Finish returns the final segment list and is idempotent.
func (p *Parser) Finish() []Segment {
	if p.finished {
		return p.segments
	}
	if p.mode == modeReasoning {
		p.closeReasoning()
	}
	if p.pending.Len() > 0 {
		line := p.pending.String()
		p.pending.Reset()
		if p.mode == modeCode {
			p.processLine(line)
		} else if _, ok := parseFence(line); ok {
			p.processLine(line)
		} else {
			p.prose.WriteString(line)
		}
	}
	if p.mode == modeCode {
		p.closeCode(true)
	}
	p.flushProse()
	p.finished = true
	return p.segments
}

// Segments returns the segments emitted so far.
func (p *Parser) Segments() []Segment {
	return p.segments
}

// Text returns the raw content received on the main channel.
func (p *Parser) Text() string {
	return p.raw.String()
}

// InCodeBlock reports whether a fenced block is currently open.
func (p *Parser) InCodeBlock() bool {
	return p.mode == modeCode
}

func (p *Parser) processLine(line string) {
	if p.mode == modeCode {
		p.processCodeLine(line)
		return
	}
	if f, ok := parseFence(line); ok {
		p.flushProse()
		p.mode = modeCode
		p.fenceChar = f.char
		p.fenceLen = f.length
		p.language = f.info
		p.depth = 0
		p.code.Reset()
		p.sink.OnCodeStart(p.language)
		return
	}
	p.prose.WriteString(line)
	p.prose.WriteByte('\n')
}

func (p *Parser) processCodeLine(line string) {
	if f, ok := parseFence(line); ok && f.char == p.fenceChar && f.length >= p.fenceLen {
		if f.info != "" {
			p.depth++
		} else {
			if p.depth == 0 {
				p.closeCode(false)
				return
			}
			p.depth--
		}
	}
	p.code.WriteString(line)
	p.code.WriteByte('\n')
	p.sink.OnCodeLine(line)
}

func (p *Parser) closeCode(unterminated bool) {
	block := Segment{
		Kind:         KindCode,
		Text:         strings.TrimSuffix(p.code.String(), "\n"),
		Language:     p.language,
		Unterminated: unterminated,
	}
	p.segments = append(p.segments, block)
	p.sink.OnCodeEnd(block)
	p.code.Reset()
	p.mode = modeNormal

	if p.deferredReasoning.Len() > 0 {
		text := p.deferredReasoning.String()
		p.deferredReasoning.Reset()
		p.segments = append(p.segments, Segment{Kind: KindReasoning, Text: text})
		p.sink.OnReasoning(text)
		p.sink.OnReasoningEnd()
	}
}

func (p *Parser) closeReasoning() {
	if p.reasoning.Len() > 0 {
		p.segments = append(p.segments, Segment{Kind: KindReasoning, Text: p.reasoning.String()})
	}
	p.reasoning.Reset()
	p.mode = modeNormal
	p.sink.OnReasoningEnd()
}

// flushProse emits accumulated complete prose lines. Adjacent prose is
// merged into one segment.
func (p *Parser) flushProse() {
	if p.prose.Len() == 0 {
		return
	}
	text := p.prose.String()
	p.prose.Reset()
	p.sink.OnProse(text)
	if n := len(p.segments); n > 0 && p.segments[n-1].Kind == KindProse {
		p.segments[n-1].Text += text
		return
	}
	p.segments = append(p.segments, Segment{Kind: KindProse, Text: text})
}
