// Package evtmeta reads the event log metadata of providers that are also
// event log publishers: the channel and the message template of each event,
// which registered manifests do not carry. The metadata comes from an
// external helper process writing XML of the form
//
//	<Providers>
//	  <Provider>
//	    <Name>...</Name>
//	    <EventMetadata>
//	      <Event><Id>1</Id><Version>0</Version><Channel>...</Channel><Message>...</Message></Event>
//	    </EventMetadata>
//	  </Provider>
//	</Providers>
package evtmeta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/tekert/golang-etwmeta/internal/textenc"
)

const eventPath = "./Provider/EventMetadata/Event"

// EventMeta is the event log view of one event.
type EventMeta struct {
	ID      int
	Version int
	Channel string
	Message string
}

type eventKey struct {
	id, version int
}

// ProviderMeta holds the event metadata of one provider.
type ProviderMeta struct {
	Name   string
	events map[eventKey]EventMeta
}

// Lookup returns the metadata of event (id, version). When the helper lists
// the pair more than once, the last occurrence wins.
func (p *ProviderMeta) Lookup(id, version int) (EventMeta, bool) {
	if p == nil {
		return EventMeta{}, false
	}
	e, ok := p.events[eventKey{id, version}]
	return e, ok
}

// Len returns the number of distinct (id, version) pairs.
func (p *ProviderMeta) Len() int {
	if p == nil {
		return 0
	}
	return len(p.events)
}

// ParseError is returned for helper output that is not well-formed XML. Raw
// is the offending output.
type ParseError struct {
	Provider string
	Raw      []byte
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("evtmeta: %s: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads helper output, UTF-8 or UTF-16. Events whose Id or Version is
// not an integer are ignored; a document without the expected structure
// yields an empty result.
func Parse(provider string, data []byte) (*ProviderMeta, error) {
	text, err := textenc.Decode(data)
	if err != nil {
		return nil, &ParseError{Provider: provider, Raw: data, Err: err}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, &ParseError{Provider: provider, Raw: data, Err: err}
	}

	meta := &ProviderMeta{Name: provider, events: make(map[eventKey]EventMeta)}
	root := doc.Root()
	if root == nil || root.Tag != "Providers" {
		return meta, nil
	}

	for _, e := range root.FindElements(eventPath) {
		id, err := strconv.Atoi(strings.TrimSpace(childText(e, "Id")))
		if err != nil {
			continue
		}
		version, err := strconv.Atoi(strings.TrimSpace(childText(e, "Version")))
		if err != nil {
			continue
		}
		meta.events[eventKey{id, version}] = EventMeta{
			ID:      id,
			Version: version,
			Channel: strings.TrimSpace(childText(e, "Channel")),
			Message: childText(e, "Message"),
		}
	}
	return meta, nil
}

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
