package plesktest

import "encoding/xml"

type requestPacket struct {
	Site *struct {
		Get *struct {
			Filter struct {
				Name string `xml:"name"`
			} `xml:"filter"`
		} `xml:"get"`
	} `xml:"site"`
	Mail *struct {
		Update *struct {
			Add    *aliasChange `xml:"add"`
			Remove *aliasChange `xml:"remove"`
		} `xml:"update"`
		GetInfo *struct {
			Filter struct {
				SiteID int    `xml:"site-id"`
				Name   string `xml:"name"`
			} `xml:"filter"`
		} `xml:"get_info"`
	} `xml:"mail"`
}

type aliasChange struct {
	Filter struct {
		SiteID   int `xml:"site-id"`
		Mailname struct {
			Name  string `xml:"name"`
			Alias string `xml:"alias"`
		} `xml:"mailname"`
	} `xml:"filter"`
}

type responsePacket struct {
	XMLName xml.Name   `xml:"packet"`
	Version string     `xml:"version,attr"`
	System  *result    `xml:"system,omitempty"`
	Site    *siteBlock `xml:"site,omitempty"`
	Mail    *mailBlock `xml:"mail,omitempty"`
}

type result struct {
	Status  string `xml:"status"`
	ErrCode string `xml:"errcode,omitempty"`
	ErrText string `xml:"errtext,omitempty"`
}

func okResult() *result {
	return &result{Status: "ok"}
}

func errorResult(code, text string) *result {
	return &result{Status: "error", ErrCode: code, ErrText: text}
}

type siteBlock struct {
	Get struct {
		Results []*siteGetResult `xml:"result"`
	} `xml:"get"`
}

type siteGetResult struct {
	Status   string    `xml:"status"`
	ErrCode  string    `xml:"errcode,omitempty"`
	ErrText  string    `xml:"errtext,omitempty"`
	FilterID string    `xml:"filter-id"`
	ID       string    `xml:"id,omitempty"`
	Data     *siteData `xml:"data>gen_info,omitempty"`
}

type siteData struct {
	Name string `xml:"name"`
}

type mailBlock struct {
	Update  *mailUpdateResult `xml:"update,omitempty"`
	GetInfo *mailInfoList     `xml:"get_info,omitempty"`
}

type mailUpdateResult struct {
	Add    *resultList `xml:"add,omitempty"`
	Remove *resultList `xml:"remove,omitempty"`
}

type resultList struct {
	Results []*result `xml:"result"`
}

type mailInfoList struct {
	Results []*mailInfoResult `xml:"result"`
}

type mailInfoResult struct {
	result
	Mailname *mailnameInfo `xml:"mailname,omitempty"`
}

type mailnameInfo struct {
	Name  string   `xml:"name"`
	Alias []string `xml:"alias"`
}
