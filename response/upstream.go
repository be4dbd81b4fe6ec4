// response/upstream.go
package response

import (
	"bytes"
	"strings"

	"github.com/antchfx/xmlquery"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
)

// UpstreamError is an error marker found inside an NDC response body. Its presence does
// not make a call fail; interpreting it is left to the message parser.
type UpstreamError struct {
	Code    string `json:"code,omitempty"`
	Type    string `json:"type,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// AsProtocolError converts the marker into the client's error taxonomy.
func (u UpstreamError) AsProtocolError() *ndcerrors.UpstreamProtocolError {
	return &ndcerrors.UpstreamProtocolError{
		Code:    u.Code,
		Type:    u.Type,
		Owner:   u.Owner,
		Message: u.Message,
	}
}

// InspectUpstreamErrors collects <Error> elements (in any namespace, NDC 17.x attribute
// form or 21.3 child element form) and SOAP faults from an XML body. A body that is not
// XML yields no markers.
func InspectUpstreamErrors(body []byte) []UpstreamError {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var found []UpstreamError
	for _, n := range xmlquery.Find(doc, "//*[local-name()='Error']") {
		found = append(found, upstreamErrorFromNode(n))
	}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='Fault']") {
		found = append(found, UpstreamError{
			Code:    childText(n, "faultcode", "Code"),
			Type:    "Fault",
			Message: firstNonEmpty(childText(n, "faultstring", "Reason"), strings.TrimSpace(n.InnerText())),
		})
	}
	return found
}

func upstreamErrorFromNode(n *xmlquery.Node) UpstreamError {
	u := UpstreamError{
		Code:   firstNonEmpty(n.SelectAttr("Code"), childText(n, "Code", "ErrorCode")),
		Type:   firstNonEmpty(n.SelectAttr("Type"), childText(n, "TypeCode", "Type")),
		Owner:  firstNonEmpty(n.SelectAttr("Owner"), childText(n, "OwnerName", "Owner")),
		Status: firstNonEmpty(n.SelectAttr("Status"), childText(n, "StatusText", "Status")),
	}
	u.Message = firstNonEmpty(
		childText(n, "DescText", "Description", "ShortText"),
		n.SelectAttr("ShortText"),
	)
	if u.Message == "" && n.FirstChild != nil && n.FirstChild == n.LastChild && n.FirstChild.Type == xmlquery.TextNode {
		u.Message = strings.TrimSpace(n.FirstChild.Data)
	}
	return u
}

func childText(n *xmlquery.Node, names ...string) string {
	for _, name := range names {
		if c := xmlquery.FindOne(n, "./*[local-name()='"+name+"']"); c != nil {
			if text := strings.TrimSpace(c.InnerText()); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
