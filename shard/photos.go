package shard

import (
	"regexp"
	"strings"
)

var photoSizePattern = regexp.MustCompile(`-w\d+_h\d+`)

// upgradePhotoURL asks the image CDN for the large rendition and forces
// protocol-relative URLs onto https.
func upgradePhotoURL(href string) string {
	if href == "" {
		return href
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	return photoSizePattern.ReplaceAllString(href, "-w2048_h1536")
}
