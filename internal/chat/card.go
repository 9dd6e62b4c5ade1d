package chat

// Content is one renderable chat payload: plain text or a structured card.
// Exactly one of the two fields is set.
type Content struct {
	Text string
	Card *Card
}

// TextContent wraps plain text
func TextContent(text string) Content {
	return Content{Text: text}
}

// CardContent wraps a card
func CardContent(card Card) Content {
	c := card
	return Content{Card: &c}
}

// Card is an ordered list of sections. Cards are values: builder methods
// return a new card and never mutate the receiver, so a template card can be
// decorated per message without positional surgery on shared state.
type Card struct {
	ID       string
	Sections []Section
}

// Section groups widgets under an optional header
type Section struct {
	Header  string
	Widgets []Widget
}

// Widget is one typed card element; exactly one field group is set.
type Widget struct {
	TextParagraph string
	TopLabel      string
	Buttons       []Button
	TextInput     *TextInput
}

// Button triggers a named action when clicked
type Button struct {
	Text   string
	Action Action
}

// Action identifies the invoked function and its parameters
type Action struct {
	Function    string
	Interaction string
	Parameters  map[string]string
}

// TextInput collects free text from the reader
type TextInput struct {
	Name      string
	Label     string
	Value     string
	Multiline bool
}

// NewCard creates a card from named parts
func NewCard(id string, sections ...Section) Card {
	return Card{ID: id, Sections: sections}
}

// Append returns a copy of the card with extra sections at the end
func (c Card) Append(sections ...Section) Card {
	out := make([]Section, 0, len(c.Sections)+len(sections))
	out = append(out, c.Sections...)
	out = append(out, sections...)
	return Card{ID: c.ID, Sections: out}
}

// TextSection builds a single-paragraph section
func TextSection(header, text string) Section {
	return Section{
		Header:  header,
		Widgets: []Widget{{TextParagraph: text}},
	}
}
