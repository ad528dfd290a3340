package wc

import (
	"sort"
	"strconv"
	"time"

	"github.com/marmos91/wcstore/internal/cli/output"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

// displayPath renders the root relpath as ".".
func displayPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func revString(rev int64) string {
	if rev < 0 {
		return "-"
	}
	return strconv.FormatInt(rev, 10)
}

// infoFields lists the interesting fields of info, skipping empty ones.
func infoFields(info *db.Info) [][2]string {
	fields := [][2]string{
		{"Path", displayPath(info.Relpath)},
		{"Status", info.Status.String()},
		{"Kind", string(info.Kind)},
		{"Revision", revString(info.Revision)},
		{"Op depth", strconv.Itoa(info.OpDepth)},
	}
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, [2]string{key, value})
		}
	}

	if !info.Repos.IsZero() {
		add("Repository root", info.Repos.RootURL)
		add("Repository UUID", info.Repos.UUID)
		add("Repository path", displayPath(info.Repos.Relpath))
	}
	if info.Changed.Revision > 0 {
		add("Last changed rev", revString(info.Changed.Revision))
		add("Last changed author", info.Changed.Author)
		if !info.Changed.Date.IsZero() {
			add("Last changed date", info.Changed.Date.Format(time.RFC3339))
		}
	}
	add("Depth", string(info.Depth))
	add("Checksum", info.Checksum)
	add("Target", info.Target)
	if info.Original != nil {
		add("Copied from", info.Original.Relpath+"@"+revString(info.Original.Revision))
	}
	add("Moved to", info.MovedTo)
	if info.MovedHere {
		add("Moved here", "yes")
	}
	add("Changelist", info.Changelist)
	if info.Lock != nil {
		add("Lock token", info.Lock.Token)
		add("Lock owner", info.Lock.Owner)
	}
	if info.Conflicted {
		add("Conflicted", "yes")
	}
	if info.PropsMod {
		add("Properties", "modified")
	}
	return fields
}

// statusTable lists infos sorted by path.
func statusTable(infos map[string]*db.Info) *output.Table {
	paths := make([]string, 0, len(infos))
	for p := range infos {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	table := output.NewTable("PATH", "STATUS", "KIND", "REV", "OP DEPTH", "FLAGS")
	for _, p := range paths {
		info := infos[p]
		table.AddRow(displayPath(p), info.Status.String(), string(info.Kind),
			revString(info.Revision), strconv.Itoa(info.OpDepth), flags(info))
	}
	return table
}

// flags is the compact column of markers: C conflicted, M props modified,
// L locked, > moved away, < moved here.
func flags(info *db.Info) string {
	var b []byte
	if info.Conflicted {
		b = append(b, 'C')
	}
	if info.PropsMod {
		b = append(b, 'M')
	}
	if info.Lock != nil {
		b = append(b, 'L')
	}
	if info.MovedTo != "" {
		b = append(b, '>')
	}
	if info.MovedHere {
		b = append(b, '<')
	}
	return string(b)
}

// propsTable lists props sorted by name.
func propsTable(props db.Props) *output.Table {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	table := output.NewTable("NAME", "VALUE")
	for _, name := range names {
		table.AddRow(name, props[name])
	}
	return table
}
