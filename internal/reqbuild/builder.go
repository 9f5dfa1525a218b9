package reqbuild

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/mvanwyck/reverie/internal/enrich"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// Acknowledgment literals emitted after each context block.
const (
	ackUserProfile = "Acknowledging user profile."
	ackIndividual  = "Received."
	ackHistory     = "History noted."
)

// oocPreface is the line prepended to the terminal message when the input is
// out of character.
const oocPreface = "[The user is speaking out of character. Respond out of character.]"

// Group headers for the grouped-message types, in emission order.
var groupedTypes = []struct {
	typ    convo.DataType
	header string
	cache  bool
}{
	{convo.TypeMemory, "memories", true},
	{convo.TypeInsight, "insights", true},
	{convo.TypePersonaVoiceSample, "voice sample", false},
	{convo.TypeQuote, "quotes", false},
}

// Individual-message types, in emission order.
var individualTypes = []convo.DataType{
	convo.TypeGeneric,
	convo.TypeCharacterProfile,
}

// Options carries the model parameters stamped onto the request and whether
// cache breakpoints are annotated at all.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Thinking    bool
	Cache       bool

	// QuotesMaxLength truncates each quote in the quotes block to this many
	// runes. Zero disables truncation. Quotes can run to whole scenes;
	// the cap keeps them from crowding out the rest of the context.
	QuotesMaxLength int
}

// Result is the built request plus the ids of every flag consumed into it.
// The caller persists the flag consumption before dispatch.
type Result struct {
	Request     Request
	UsedFlagIDs []int64
}

// Build deterministically renders the state into a request. Identical state
// and options always produce byte-identical serialized output: every
// collection is sorted by an explicit rule and no map is iterated for output.
func Build(st *enrich.State, opts Options) Result {
	b := &builder{st: st, opts: opts}
	b.req = Request{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Thinking:    opts.Thinking,
	}
	if st.Persona != nil {
		b.req.System = st.Persona.Content
	}

	b.userProfileBlock()
	b.individualBlock()
	b.groupedBlocks()
	b.dialogueLogBlock()
	b.recentTurns()
	usedFlags := b.terminalPrompt()

	return Result{Request: b.req, UsedFlagIDs: usedFlags}
}

type builder struct {
	st   *enrich.State
	opts Options
	req  Request
}

func (b *builder) user(content string) {
	b.req.Messages = append(b.req.Messages, Message{Role: RoleUser, Content: content})
}

func (b *builder) assistant(content string) {
	b.req.Messages = append(b.req.Messages, Message{Role: RoleAssistant, Content: content})
}

// breakpoint annotates the just-emitted message as a cache boundary.
func (b *builder) breakpoint() {
	if !b.opts.Cache || len(b.req.Messages) == 0 {
		return
	}
	b.req.Messages[len(b.req.Messages)-1].CacheHint = true
}

// metaHeader renders the backtick-quoted meta line that opens every context
// message.
func metaHeader(name string) string {
	return "`[meta] " + name + "`"
}

func (b *builder) userProfileBlock() {
	profile := b.st.UserProfile()
	if profile == nil {
		return
	}
	header := "user profile"
	if profile.Name != "" {
		header = strings.ToLower(profile.Name)
	}
	b.user(metaHeader(header) + "\n\n" + profile.Content)
	b.assistant(ackUserProfile)
	b.breakpoint()
}

func (b *builder) individualBlock() {
	emitted := false
	for _, t := range individualTypes {
		items := b.st.Items(t)
		// The user profile is rendered by its own block.
		if t == convo.TypeCharacterProfile {
			items = withoutUser(items)
		}
		sortIndividual(items)
		for _, item := range items {
			header := strings.ToLower(string(item.Type))
			if item.Name != "" {
				header = strings.ToLower(item.Name)
			}
			b.user(metaHeader(header) + "\n\n" + item.Content)
			b.assistant(ackIndividual)
			emitted = true
		}
	}
	if emitted {
		b.breakpoint()
	}
}

func (b *builder) groupedBlocks() {
	for _, g := range groupedTypes {
		items := b.st.Items(g.typ)
		if len(items) == 0 {
			continue
		}
		sortGrouped(items)

		contents := make([]string, 0, len(items)+1)
		contents = append(contents, metaHeader(g.header))
		for _, item := range items {
			content := item.Content
			if g.typ == convo.TypeQuote && b.opts.QuotesMaxLength > 0 {
				content = truncate(content, b.opts.QuotesMaxLength)
			}
			contents = append(contents, content)
		}
		b.user(strings.Join(contents, "\n\n"))
		b.assistant(fmt.Sprintf("Received %d relevant %s entries.", len(items), g.header))
		if g.cache {
			b.breakpoint()
		}
	}
}

func (b *builder) dialogueLogBlock() {
	log := b.st.DialogueLog()
	if log == "" {
		return
	}
	b.user(log)
	b.assistant(ackHistory)
}

func (b *builder) recentTurns() {
	for _, t := range b.st.RecentTurns() {
		content := t.Input
		if t.SerializedRequest != "" {
			content = t.SerializedRequest
		}
		b.user(content)
		if t.Response != "" {
			b.assistant(t.Response)
		}
	}
}

// terminalPrompt emits the final user message and returns the consumed flag
// ids. Out-of-character inputs bypass flags and name formatting entirely.
func (b *builder) terminalPrompt() []int64 {
	input := b.st.Input()

	if b.st.IsOOC {
		b.user(oocPreface + "\n" + input)
		return nil
	}

	var (
		parts   []string
		usedIDs []int64
	)
	flags := b.st.Flags()
	if len(flags) > 0 {
		lines := make([]string, 0, len(flags)+1)
		lines = append(lines, "Flags:")
		for _, f := range flags {
			lines = append(lines, "- "+f.Value)
			usedIDs = append(usedIDs, f.ID)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	parts = append(parts, initial(b.st.UserName())+": "+input)
	b.user(strings.Join(parts, "\n\n"))
	return usedIDs
}

func withoutUser(items []convo.ContextData) []convo.ContextData {
	out := items[:0]
	for _, item := range items {
		if !item.IsUser {
			out = append(out, item)
		}
	}
	return out
}

func sortGrouped(items []convo.ContextData) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].ID < items[j].ID
	})
}

func sortIndividual(items []convo.ContextData) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].TokenCount != items[j].TokenCount {
			return items[i].TokenCount > items[j].TokenCount
		}
		return items[i].ID < items[j].ID
	})
}

// truncate cuts s to at most max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// initial returns the upper-cased first rune of name.
func initial(name string) string {
	for _, r := range name {
		return string(unicode.ToUpper(r))
	}
	return "?"
}
