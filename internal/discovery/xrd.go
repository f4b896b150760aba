package discovery

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

const (
	relLRDD      = "lrdd"
	relPublicKey = "public-key"
	uriParam     = "{uri}"
)

type xrdLink struct {
	Rel      string `xml:"rel,attr"`
	Template string `xml:"template,attr"`
	Href     string `xml:"href,attr"`
	Value    string `xml:"value,attr"`
	ID       string `xml:"id,attr"`
}

// xrd matches both host-meta and per-address documents. Element names are
// matched by local name so hm:Host and Host are equivalent.
type xrd struct {
	XMLName xml.Name  `xml:"XRD"`
	Host    string    `xml:"Host"`
	Subject string    `xml:"Subject"`
	Links   []xrdLink `xml:"Link"`
}

func parseXRD(data []byte) (*xrd, error) {
	var doc xrd
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: bad XRD: %v", common.ErrorNotFound, err)
	}
	return &doc, nil
}

// lrddTemplate returns the address-lookup template from a host-meta document.
func lrddTemplate(doc *xrd) (string, bool) {
	if strings.TrimSpace(doc.Host) == "" {
		return "", false
	}
	for _, l := range doc.Links {
		if strings.EqualFold(l.Rel, relLRDD) && strings.Contains(l.Template, uriParam) {
			return l.Template, true
		}
	}
	return "", false
}

type rawKey struct {
	id    string
	value string
}

func publicKeyLinks(doc *xrd) []rawKey {
	var out []rawKey
	for _, l := range doc.Links {
		if l.Rel == relPublicKey && l.Value != "" {
			out = append(out, rawKey{id: l.ID, value: l.Value})
		}
	}
	return out
}
