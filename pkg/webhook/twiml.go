package webhook

import (
	"encoding/xml"
	"fmt"
)

// TwiMLResponse TwiML response document
type TwiMLResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     []Say    `xml:"Say,omitempty"`
	Gather  *Gather  `xml:"Gather,omitempty"`
	Connect *Connect `xml:"Connect,omitempty"`
	Pause   *Pause   `xml:"Pause,omitempty"`
	Hangup  *Hangup  `xml:"Hangup,omitempty"`
}

// Say TwiML Say verb
type Say struct {
	Voice    string `xml:"voice,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	Text     string `xml:",chardata"`
}

// Gather TwiML Gather verb
type Gather struct {
	Input    string `xml:"input,attr,omitempty"`
	Action   string `xml:"action,attr,omitempty"`
	Method   string `xml:"method,attr,omitempty"`
	Timeout  int    `xml:"timeout,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	Say      *Say   `xml:"Say,omitempty"`
}

// Connect TwiML Connect verb, carries the media stream target
type Connect struct {
	Stream *Stream `xml:"Stream,omitempty"`
}

// Stream TwiML Stream noun
type Stream struct {
	URL        string            `xml:"url,attr"`
	Parameters []StreamParameter `xml:"Parameter,omitempty"`
}

// StreamParameter custom parameter forwarded in the stream's start frame
type StreamParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Hangup TwiML Hangup verb
type Hangup struct{}

// Pause TwiML Pause verb
type Pause struct {
	Length int `xml:"length,attr,omitempty"`
}

// RenderTwiML marshals the response with the XML declaration prepended.
func RenderTwiML(response *TwiMLResponse) ([]byte, error) {
	xmlData, err := xml.MarshalIndent(response, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TwiML response: %w", err)
	}
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n" + string(xmlData)), nil
}
