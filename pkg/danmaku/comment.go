// Package danmaku implements the dandanplay-compatible XML artifact store:
// one file per Episode, a path-templating engine with a fixed variable
// whitelist, and the smart-refresh write contract that only ever replaces
// a file with a strictly richer one.
package danmaku

// Comment is one normalized danmaku line. Time is in seconds from the
// start of the episode; Mode/FontSize/Color follow the dandanplay p-attribute
// convention. Provider is the source tag appended in brackets, e.g. "[bilibili]".
type Comment struct {
	Time     float64
	Mode     int
	FontSize int
	Color    int
	Provider string
	Text     string
}

// Default field values used whenever an incoming p-attribute is missing or
// unparseable.
const (
	DefaultMode     = 1
	DefaultFontSize = 25
	DefaultColor    = 16777215
)
