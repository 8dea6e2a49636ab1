package evtx

import (
	"context"
	"strconv"
	"time"

	"github.com/Velocidex/ordereddict"
)

// ResolvedEvent is the public per-record result of EventAssembler (§4.11).
type ResolvedEvent struct {
	ID         uint64
	Timestamp  time.Time
	EventID    uint32
	Qualifiers uint16
	Level      int
	LevelName  string
	Task       uint16
	Opcode     uint8
	Keywords   uint64
	Provider   string
	ProviderGUID string
	Channel    string
	Computer   string
	Execution  struct {
		ProcessID uint32
		ThreadID  uint32
	}
	Security struct {
		UserID string
	}
	Correlation struct {
		ActivityID string
	}
	Data struct {
		Items   []LayoutEntry
		Ordered *ordereddict.Dict
	}
	Raw struct {
		XML string
	}
	MessageResolution *MessageResolution
}

// IncludeDataItems gates ResolvedEvent.Data.Items per §6.
type IncludeDataItems int

const (
	DataItemsNone IncludeDataItems = iota
	DataItemsSummary
	DataItemsFull
)

const dataItemsSummaryCap = 10

// levelName implements §4.11's level mapping.
func levelName(level int) string {
	switch level {
	case 0:
		return "LogAlways"
	case 1:
		return "Critical"
	case 2:
		return "Error"
	case 3:
		return "Warning"
	case 4:
		return "Information"
	case 5:
		return "Verbose"
	default:
		return "Unknown(" + strconv.Itoa(level) + ")"
	}
}

// EventAssembler orchestrates §4.11: render, extract system fields and
// layout, run the resolver, and produce a ResolvedEvent.
type EventAssembler struct {
	renderer   *Renderer
	resolver   *MessageResolver
	includeXML bool
	dataItems  IncludeDataItems
}

// NewEventAssembler builds an assembler. resolver may be nil, matching
// message_strategy=none (§6): no resolution is attempted and
// ResolvedEvent.MessageResolution stays nil.
func NewEventAssembler(resolver *MessageResolver, includeXML bool, dataItems IncludeDataItems) *EventAssembler {
	return &EventAssembler{renderer: NewRenderer(), resolver: resolver, includeXML: includeXML, dataItems: dataItems}
}

// Assemble renders rec's BXML, extracts system fields and the data layout,
// optionally resolves a human-readable message, and returns the event.
func (a *EventAssembler) Assemble(ctx context.Context, rec *Record) (*ResolvedEvent, error) {
	root, subs, err := rec.Root()
	if err != nil {
		return nil, wrapf(KindOutOfBounds, err, "render record %d", rec.RecordNumber)
	}
	ev := a.newEventWithSystemFields(rec, root, subs)
	return a.finishAssemble(ctx, rec, root, subs, ev)
}

// newEventWithSystemFields runs just the cheap, header-like extraction
// (§4.11 step 2) so callers can apply eventId/provider pre-filters (§4.11
// step 5) before paying for layout/render/resolve.
func (a *EventAssembler) newEventWithSystemFields(rec *Record, root *Element, subs []Substitution) *ResolvedEvent {
	ev := &ResolvedEvent{ID: rec.RecordNumber, Timestamp: rec.TimestampAsDate()}
	a.extractSystemFields(ev, root, subs)
	return ev
}

// finishAssemble completes assembly for an event whose system fields (and
// any pre-filter decision) have already been computed.
func (a *EventAssembler) finishAssemble(ctx context.Context, rec *Record, root *Element, subs []Substitution, ev *ResolvedEvent) (*ResolvedEvent, error) {
	layout := ExtractLayout(root, subs)
	switch a.dataItems {
	case DataItemsNone:
		// omit entirely
	case DataItemsSummary:
		if len(layout) > dataItemsSummaryCap {
			layout = layout[:dataItemsSummaryCap]
		}
		ev.Data.Items = layout
		ev.Data.Ordered = LayoutToOrderedDict(layout, subs)
	case DataItemsFull:
		ev.Data.Items = layout
		ev.Data.Ordered = LayoutToOrderedDict(layout, subs)
	}

	if a.includeXML {
		xml, err := a.renderer.Render(root, subs)
		if err == nil {
			ev.Raw.XML = xml
		} else {
			warnf("render failed for raw xml", map[string]interface{}{"record": rec.RecordNumber, "error": err.Error()})
		}
	}

	if a.resolver != nil {
		system := root.FirstChildElement("System")
		eventSourceName := ""
		if system != nil {
			if p := system.FirstChildElement("Provider"); p != nil {
				if v := p.Attr("EventSourceName"); v != nil {
					eventSourceName = resolveAttrText(v, subs)
				}
			}
		}
		res, err := a.resolver.Resolve(ctx, ev.Provider, eventSourceName, ev.EventID, "", layout, subs)
		if err != nil && !IsKind(err, KindMessageRequiredMissing) {
			return nil, err
		}
		ev.MessageResolution = res
		if err != nil {
			return ev, err
		}
	}

	return ev, nil
}

func (a *EventAssembler) extractSystemFields(ev *ResolvedEvent, root *Element, subs []Substitution) {
	system := root.FirstChildElement("System")
	if system == nil {
		ev.LevelName = levelName(0)
		return
	}
	if p := system.FirstChildElement("Provider"); p != nil {
		ev.Provider = attrText(p, "Name", subs)
		ev.ProviderGUID = attrText(p, "Guid", subs)
	}
	if e := system.FirstChildElement("EventID"); e != nil {
		ev.EventID = uint32(parseUintChild(e, subs))
		if q := attrText(e, "Qualifiers", subs); q != "" {
			if n, err := strconv.ParseUint(q, 10, 16); err == nil {
				ev.Qualifiers = uint16(n)
			}
		}
	}
	if l := system.FirstChildElement("Level"); l != nil {
		ev.Level = int(parseUintChild(l, subs))
	}
	ev.LevelName = levelName(ev.Level)
	if t := system.FirstChildElement("Task"); t != nil {
		ev.Task = uint16(parseUintChild(t, subs))
	}
	if o := system.FirstChildElement("Opcode"); o != nil {
		ev.Opcode = uint8(parseUintChild(o, subs))
	}
	if k := system.FirstChildElement("Keywords"); k != nil {
		ev.Keywords = parseHexOrUintChild(k, subs)
	}
	if c := system.FirstChildElement("Channel"); c != nil {
		ev.Channel = childText(c, subs)
	}
	if c := system.FirstChildElement("Computer"); c != nil {
		ev.Computer = childText(c, subs)
	}
	if ex := system.FirstChildElement("Execution"); ex != nil {
		if n, err := strconv.ParseUint(attrText(ex, "ProcessID", subs), 10, 32); err == nil {
			ev.Execution.ProcessID = uint32(n)
		}
		if n, err := strconv.ParseUint(attrText(ex, "ThreadID", subs), 10, 32); err == nil {
			ev.Execution.ThreadID = uint32(n)
		}
	}
	if s := system.FirstChildElement("Security"); s != nil {
		ev.Security.UserID = attrText(s, "UserID", subs)
	}
	if c := system.FirstChildElement("Correlation"); c != nil {
		ev.Correlation.ActivityID = attrText(c, "ActivityID", subs)
	}
}

// attrText and childText resolve either a literal node or a substitution
// reference, since Windows templates freely use either for the same field
// depending on provider (§4.6/§4.8).
func attrText(el *Element, name string, subs []Substitution) string {
	return resolveAttrText(el.Attr(name), subs)
}

func childText(el *Element, subs []Substitution) string {
	for _, c := range el.Children {
		switch c.Kind {
		case NodeText:
			return c.Text
		case NodeSubstitution:
			return resolveAttrText(c, subs)
		}
	}
	return ""
}

func parseUintChild(el *Element, subs []Substitution) uint64 {
	n, err := strconv.ParseUint(childText(el, subs), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseHexOrUintChild(el *Element, subs []Substitution) uint64 {
	s := childText(el, subs)
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err == nil {
			return n
		}
	}
	return parseUintChild(el, subs)
}
