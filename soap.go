package onvif

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/elgs/gostrgen"
	"github.com/juju/errors"
)

const (
	nsSOAP   = "http://www.w3.org/2003/05/soap-envelope"
	nsWSSE   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsWSU    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	nsSchema = "http://www.onvif.org/ver10/schema"

	passwordDigestType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	base64EncodingType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"

	nonceLength  = 20
	nonceCharset = gostrgen.Lower | gostrgen.Upper | gostrgen.Digit

	// Devices answering with more than this are not talking ONVIF
	maxResponseSize = 4 << 20
)

// Fault is a SOAP fault returned by a device
type Fault struct {
	Code    string
	Subcode string
	Reason  string
}

func (f *Fault) Error() string {
	code := f.Code
	if f.Subcode != "" {
		code += "/" + f.Subcode
	}
	if f.Reason == "" {
		return fmt.Sprintf("SOAP fault %s", code)
	}
	return fmt.Sprintf("SOAP fault %s: %s", code, f.Reason)
}

// usernameToken holds the WS-Security fields of one request
type usernameToken struct {
	Username string
	Digest   string
	Nonce    string
	Created  string
}

// newUsernameToken creates a WS-Security password digest token
func newUsernameToken(creds *Credentials, now time.Time) (*usernameToken, error) {
	nonce, err := gostrgen.RandGen(nonceLength, nonceCharset, "", "")
	if err != nil {
		return nil, errors.Annotate(err, "generating nonce")
	}
	created := now.UTC().Format("2006-01-02T15:04:05.000Z")

	return &usernameToken{
		Username: creds.Username,
		Digest:   passwordDigest([]byte(nonce), created, creds.Password),
		Nonce:    base64.StdEncoding.EncodeToString([]byte(nonce)),
		Created:  created,
	}, nil
}

// passwordDigest is Base64(SHA1(nonce + created + password))
func passwordDigest(nonce []byte, created, password string) string {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// newRequest creates the body element of an operation in the given namespace.
// The ONVIF schema namespace is declared as tt so parameters can use it.
func newRequest(prefix, namespace, operation string) *etree.Element {
	req := etree.NewElement(prefix + ":" + operation)
	req.CreateAttr("xmlns:"+prefix, namespace)
	req.CreateAttr("xmlns:tt", nsSchema)
	return req
}

// buildEnvelope wraps a request element in a SOAP 1.2 envelope
func buildEnvelope(req *etree.Element, token *usernameToken) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAP)

	header := env.CreateElement("s:Header")
	if token != nil {
		security := header.CreateElement("wsse:Security")
		security.CreateAttr("xmlns:wsse", nsWSSE)
		security.CreateAttr("xmlns:wsu", nsWSU)

		ut := security.CreateElement("wsse:UsernameToken")
		ut.CreateElement("wsse:Username").SetText(token.Username)
		password := ut.CreateElement("wsse:Password")
		password.CreateAttr("Type", passwordDigestType)
		password.SetText(token.Digest)
		nonce := ut.CreateElement("wsse:Nonce")
		nonce.CreateAttr("EncodingType", base64EncodingType)
		nonce.SetText(token.Nonce)
		ut.CreateElement("wsu:Created").SetText(token.Created)
	}

	env.CreateElement("s:Body").AddChild(req)
	return doc
}

// parseEnvelope returns the Body element of a SOAP response
func parseEnvelope(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Annotate(err, "parsing SOAP response")
	}
	body := doc.FindElement("./Envelope/Body")
	if body == nil {
		return nil, errors.NotValidf("SOAP response without Envelope/Body")
	}
	return body, nil
}

// parseFault reads SOAP 1.2 (Code/Reason) and SOAP 1.1 (faultcode/faultstring) faults
func parseFault(el *etree.Element) *Fault {
	fault := &Fault{
		Code:    childText(el, "./Code/Value"),
		Subcode: childText(el, "./Code/Subcode/Value"),
		Reason:  childText(el, "./Reason/Text"),
	}
	if fault.Code == "" {
		fault.Code = childText(el, "./faultcode")
	}
	if fault.Reason == "" {
		fault.Reason = childText(el, "./faultstring")
	}
	return fault
}

// call sends one SOAP request and returns the response Body element
func (c *Client) call(ctx context.Context, action string, req *etree.Element) (*etree.Element, error) {
	var token *usernameToken
	if c.creds != nil {
		var err error
		if token, err = newUsernameToken(c.creds, time.Now()); err != nil {
			return nil, errors.Trace(err)
		}
	}

	payload, err := buildEnvelope(req, token).WriteToBytes()
	if err != nil {
		return nil, errors.Annotatef(err, "encoding %s", action)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Trace(err)
	}
	httpReq.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", operationName(action))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s response", operationName(action))
	}

	// Some cameras return error codes with an empty body instead of a SOAP fault
	body, parseErr := parseEnvelope(respBody)
	if parseErr == nil {
		if fault := body.FindElement("./Fault"); fault != nil {
			return nil, errors.Annotatef(parseFault(fault), "%s", operationName(action))
		}
	}
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("%s: HTTP %d %s", operationName(action), resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if parseErr != nil {
		return nil, errors.Annotatef(parseErr, "%s", operationName(action))
	}
	return body, nil
}

// operationName turns a SOAP action URI into its operation name
func operationName(action string) string {
	if i := strings.LastIndex(action, "/"); i != -1 {
		return action[i+1:]
	}
	return action
}

func childText(el *etree.Element, path string) string {
	if child := el.FindElement(path); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}

func childInt(el *etree.Element, path string) int {
	n, _ := strconv.Atoi(childText(el, path))
	return n
}
