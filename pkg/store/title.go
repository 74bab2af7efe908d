package store

const maxTitleLength = 254

// clipTitle applies the §4.C title bound: missing titles become the
// literal "Untitled"; anything longer than 254 bytes is clipped to it.
func clipTitle(title string) string {
	if title == "" {
		return "Untitled"
	}
	if len(title) > maxTitleLength {
		return title[:maxTitleLength]
	}
	return title
}
