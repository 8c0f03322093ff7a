package hal

// FollowLinkConfig asks the backend to embed a linked resource, optionally
// with nested links of its own.
type FollowLinkConfig struct {
	Name          string
	ShouldEmbed   bool
	LinksToFollow []FollowLinkConfig
}

// FollowLink returns an embedding config for name.
func FollowLink(name string, nested ...FollowLinkConfig) FollowLinkConfig {
	return FollowLinkConfig{Name: name, ShouldEmbed: true, LinksToFollow: nested}
}

// EmbedParams renders the embed query values for links, e.g.
// "item", "item/owningCollection".
func EmbedParams(links ...FollowLinkConfig) []string {
	var out []string
	for _, l := range links {
		if !l.ShouldEmbed || l.Name == "" {
			continue
		}
		out = append(out, embedPaths(l.Name, l.LinksToFollow)...)
	}
	return out
}

func embedPaths(prefix string, nested []FollowLinkConfig) []string {
	var children []string
	for _, n := range nested {
		if !n.ShouldEmbed || n.Name == "" {
			continue
		}
		children = append(children, embedPaths(prefix+"/"+n.Name, n.LinksToFollow)...)
	}
	if len(children) == 0 {
		return []string{prefix}
	}
	return children
}
