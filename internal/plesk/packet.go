package plesk

import (
	"encoding/xml"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// marker marshals as an empty element, e.g. <gen_info></gen_info>.
type marker struct{}

type requestPacket struct {
	XMLName xml.Name     `xml:"packet"`
	Site    *siteRequest `xml:"site,omitempty"`
	Mail    *mailRequest `xml:"mail,omitempty"`
}

type siteRequest struct {
	Get *siteGet `xml:"get"`
}

type siteGet struct {
	Filter struct {
		Name string `xml:"name"`
	} `xml:"filter"`
	Dataset struct {
		GenInfo marker `xml:"gen_info"`
	} `xml:"dataset"`
}

type mailRequest struct {
	Update  *mailUpdate  `xml:"update,omitempty"`
	GetInfo *mailGetInfo `xml:"get_info,omitempty"`
}

type mailUpdate struct {
	Add    *mailAliasChange `xml:"add,omitempty"`
	Remove *mailAliasChange `xml:"remove,omitempty"`
}

type mailAliasChange struct {
	Filter mailAliasFilter `xml:"filter"`
}

type mailAliasFilter struct {
	SiteID   int `xml:"site-id"`
	Mailname struct {
		Name  string `xml:"name"`
		Alias string `xml:"alias"`
	} `xml:"mailname"`
}

type mailGetInfo struct {
	Filter struct {
		SiteID int    `xml:"site-id"`
		Name   string `xml:"name"`
	} `xml:"filter"`
	Aliases marker `xml:"aliases"`
}

// CheckText rejects values that encoding/xml would silently replace with
// U+FFFD: invalid UTF-8, control characters and the non-characters
// U+FFFE and U+FFFF.
func CheckText(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidText, s)
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsControl(r) || r == 0xFFFE || r == 0xFFFF
	}) >= 0 {
		return fmt.Errorf("%w: %q contains a control character", ErrInvalidText, s)
	}
	return nil
}

func checkAll(values ...string) error {
	for _, v := range values {
		if err := CheckText(v); err != nil {
			return err
		}
	}
	return nil
}

func encodePacket(p *requestPacket) ([]byte, error) {
	body, err := xml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// SiteGetPacket builds a site/get request for the general info of the
// site with the given name.
func SiteGetPacket(site string) ([]byte, error) {
	if err := CheckText(site); err != nil {
		return nil, err
	}
	get := &siteGet{}
	get.Filter.Name = site
	return encodePacket(&requestPacket{Site: &siteRequest{Get: get}})
}

// AddAliasPacket builds a mail/update/add request adding alias to account.
func AddAliasPacket(siteID int, account, alias string) ([]byte, error) {
	if err := checkAll(account, alias); err != nil {
		return nil, err
	}
	return encodePacket(&requestPacket{Mail: &mailRequest{
		Update: &mailUpdate{Add: aliasChange(siteID, account, alias)},
	}})
}

// RemoveAliasPacket builds a mail/update/remove request removing alias
// from account.
func RemoveAliasPacket(siteID int, account, alias string) ([]byte, error) {
	if err := checkAll(account, alias); err != nil {
		return nil, err
	}
	return encodePacket(&requestPacket{Mail: &mailRequest{
		Update: &mailUpdate{Remove: aliasChange(siteID, account, alias)},
	}})
}

// ListAliasesPacket builds a mail/get_info request for the aliases of
// account.
func ListAliasesPacket(siteID int, account string) ([]byte, error) {
	if err := CheckText(account); err != nil {
		return nil, err
	}
	info := &mailGetInfo{}
	info.Filter.SiteID = siteID
	info.Filter.Name = account
	return encodePacket(&requestPacket{Mail: &mailRequest{GetInfo: info}})
}

func aliasChange(siteID int, account, alias string) *mailAliasChange {
	change := &mailAliasChange{}
	change.Filter.SiteID = siteID
	change.Filter.Mailname.Name = account
	change.Filter.Mailname.Alias = alias
	return change
}
