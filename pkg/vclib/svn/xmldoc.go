package svn

import (
	"time"
)

// Documents produced by the --xml output of the svn client

const (
	kindDir  = "dir"
	kindFile = "file"

	propLog        = "svn:log"
	propAuthor     = "svn:author"
	propDate       = "svn:date"
	propSpecial    = "svn:special"
	propExecutable = "svn:executable"
)

type revpropsDoc struct {
	Revprops struct {
		Rev int64 `xml:"rev,attr"`
	} `xml:"revprops"`
}

type infoDoc struct {
	Entries []infoEntry `xml:"entry"`
}

type infoEntry struct {
	Kind     string `xml:"kind,attr"`
	Revision int64  `xml:"revision,attr"`
	URL      string `xml:"url"`
}

type commitElem struct {
	Revision int64  `xml:"revision,attr"`
	Author   string `xml:"author"`
	Date     string `xml:"date"`
}

type listsDoc struct {
	Lists []struct {
		Entries []*dirent `xml:"entry"`
	} `xml:"list"`
}

type dirent struct {
	Kind   string     `xml:"kind,attr"`
	Name   string     `xml:"name"`
	Size   *int64     `xml:"size"`
	Commit commitElem `xml:"commit"`
	Lock   *lockElem  `xml:"lock"`

	// createdRev is the last history revision of the entry, not found in the document
	createdRev int64
}

type lockElem struct {
	Owner string `xml:"owner"`
}

type logDoc struct {
	Entries []*logEntry `xml:"logentry"`
}

type logEntry struct {
	Revision int64       `xml:"revision,attr"`
	Author   string      `xml:"author"`
	Date     string      `xml:"date"`
	Msg      string      `xml:"msg"`
	Paths    []*pathElem `xml:"paths>path"`
	Revprops []propElem  `xml:"revprops>property"`
}

type pathElem struct {
	Path         string `xml:",chardata"`
	Action       string `xml:"action,attr"`
	Kind         string `xml:"kind,attr"`
	CopyFromPath string `xml:"copyfrom-path,attr"`
	CopyFromRev  string `xml:"copyfrom-rev,attr"`
	TextMods     string `xml:"text-mods,attr"`
	PropMods     string `xml:"prop-mods,attr"`
}

type propElem struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type proplistDoc struct {
	Targets []struct {
		Props []propElem `xml:"property"`
	} `xml:"target"`
}

type blameDoc struct {
	Targets []struct {
		Entries []blameEntry `xml:"entry"`
	} `xml:"target"`
}

type blameEntry struct {
	LineNumber int         `xml:"line-number,attr"`
	Commit     *commitElem `xml:"commit"`
}

// revprops collects the revision properties of a log entry, including the standard ones
func (e *logEntry) revprops() map[string]string {
	props := map[string]string{
		propLog:    e.Msg,
		propAuthor: e.Author,
		propDate:   e.Date,
	}
	for _, p := range e.Revprops {
		props[p.Name] = p.Value
	}
	return props
}

// parseDate reads an svn timestamp, such as 2020-01-02T03:04:05.123456Z, to the second.
// Unknown formats yield nil.
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	t = t.UTC().Truncate(time.Second)
	return &t
}
