// Package onviftest provides an in-process ONVIF camera serving the device
// and media services over TLS
package onviftest

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/gin-gonic/gin"
)

const (
	nsSOAP   = "http://www.w3.org/2003/05/soap-envelope"
	nsDevice = "http://www.onvif.org/ver10/device/wsdl"
	nsMedia  = "http://www.onvif.org/ver10/media/wsdl"
	nsSchema = "http://www.onvif.org/ver10/schema"

	DevicePath = "/onvif/device_service"
	MediaPath  = "/onvif/media_service"
)

// Service is one entry of the camera's service catalog. XAddrs starting with
// "/" are served by the camera itself.
type Service struct {
	Namespace string
	XAddr     string
}

// Profile is a media profile. An empty Encoding means the profile has no
// video encoder configuration.
type Profile struct {
	Token     string
	Name      string
	Encoding  string
	Width     int
	Height    int
	StreamURI string
	// Fault makes GetStreamUri for this profile answer with a SOAP fault
	Fault bool
}

// Info is returned by GetDeviceInformation
type Info struct {
	Manufacturer string
	Model        string
	Firmware     string
	Serial       string
	HardwareID   string
}

// Camera is a fake ONVIF device
type Camera struct {
	Services []Service
	Profiles []Profile
	Info     Info

	// When set, every request must carry a matching WS-Security digest
	Username string
	Password string

	server *httptest.Server

	mu          sync.Mutex
	calls       map[string]int
	streamCalls map[string]int
}

// DefaultServices advertises the device and media services of the camera
func DefaultServices() []Service {
	return []Service{
		{Namespace: nsDevice, XAddr: DevicePath},
		{Namespace: nsMedia, XAddr: MediaPath},
	}
}

// Start serves the camera on a local TLS listener
func (c *Camera) Start() {
	gin.SetMode(gin.TestMode)
	c.calls = make(map[string]int)
	c.streamCalls = make(map[string]int)

	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/*path", c.handle)
	c.server = httptest.NewTLSServer(router)
}

// Close stops the server
func (c *Camera) Close() {
	c.server.Close()
}

// URL is the base URL of the camera, without trailing slash
func (c *Camera) URL() string {
	return c.server.URL
}

// DeviceServiceURL is what the camera advertises in discovery
func (c *Camera) DeviceServiceURL() string {
	return c.server.URL + DevicePath
}

// Client returns an HTTP client trusting the camera's certificate
func (c *Camera) Client() *http.Client {
	return c.server.Client()
}

// Calls returns how many times an operation was requested
func (c *Camera) Calls(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[operation]
}

// StreamURICalls returns how many GetStreamUri requests named token
func (c *Camera) StreamURICalls(token string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamCalls[token]
}

func (c *Camera) handle(ctx *gin.Context) {
	data, err := ctx.GetRawData()
	if err != nil {
		ctx.Status(http.StatusBadRequest)
		return
	}
	req := etree.NewDocument()
	if err := req.ReadFromBytes(data); err != nil {
		ctx.Status(http.StatusBadRequest)
		return
	}
	op := req.FindElement("./Envelope/Body/*")
	if op == nil {
		ctx.Status(http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.calls[op.Tag]++
	c.mu.Unlock()

	if !c.authorized(req) {
		c.fault(ctx, http.StatusBadRequest, "ter:NotAuthorized", "Sender not authorized")
		return
	}

	switch op.Tag {
	case "GetServices":
		c.reply(ctx, c.getServices())
	case "GetDeviceInformation":
		c.reply(ctx, c.getDeviceInformation())
	case "GetProfiles":
		c.reply(ctx, c.getProfiles())
	case "GetStreamUri":
		c.getStreamURI(ctx, strings.TrimSpace(textOf(op, "./ProfileToken")))
	default:
		c.fault(ctx, http.StatusBadRequest, "ter:ActionNotSupported", "Optional Action Not Implemented")
	}
}

func (c *Camera) authorized(req *etree.Document) bool {
	if c.Username == "" {
		return true
	}
	token := req.FindElement("./Envelope/Header/Security/UsernameToken")
	if token == nil || textOf(token, "./Username") != c.Username {
		return false
	}
	nonce, err := base64.StdEncoding.DecodeString(textOf(token, "./Nonce"))
	if err != nil {
		return false
	}
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(textOf(token, "./Created")))
	h.Write([]byte(c.Password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil)) == textOf(token, "./Password")
}

func (c *Camera) getServices() *etree.Element {
	resp := etree.NewElement("tds:GetServicesResponse")
	for _, svc := range c.Services {
		xaddr := svc.XAddr
		if strings.HasPrefix(xaddr, "/") {
			xaddr = c.server.URL + xaddr
		}
		el := resp.CreateElement("tds:Service")
		el.CreateElement("tds:Namespace").SetText(svc.Namespace)
		el.CreateElement("tds:XAddr").SetText(xaddr)
		version := el.CreateElement("tds:Version")
		version.CreateElement("tt:Major").SetText("2")
		version.CreateElement("tt:Minor").SetText("60")
	}
	return resp
}

func (c *Camera) getDeviceInformation() *etree.Element {
	resp := etree.NewElement("tds:GetDeviceInformationResponse")
	resp.CreateElement("tds:Manufacturer").SetText(c.Info.Manufacturer)
	resp.CreateElement("tds:Model").SetText(c.Info.Model)
	resp.CreateElement("tds:FirmwareVersion").SetText(c.Info.Firmware)
	resp.CreateElement("tds:SerialNumber").SetText(c.Info.Serial)
	resp.CreateElement("tds:HardwareId").SetText(c.Info.HardwareID)
	return resp
}

func (c *Camera) getProfiles() *etree.Element {
	resp := etree.NewElement("trt:GetProfilesResponse")
	for _, p := range c.Profiles {
		el := resp.CreateElement("trt:Profiles")
		el.CreateAttr("token", p.Token)
		el.CreateAttr("fixed", "true")
		el.CreateElement("tt:Name").SetText(p.Name)
		if p.Encoding == "" {
			continue
		}
		vec := el.CreateElement("tt:VideoEncoderConfiguration")
		vec.CreateAttr("token", "vec_"+p.Token)
		vec.CreateElement("tt:Name").SetText("vec_" + p.Token)
		vec.CreateElement("tt:Encoding").SetText(p.Encoding)
		res := vec.CreateElement("tt:Resolution")
		res.CreateElement("tt:Width").SetText(strconv.Itoa(p.Width))
		res.CreateElement("tt:Height").SetText(strconv.Itoa(p.Height))
	}
	return resp
}

func (c *Camera) getStreamURI(ctx *gin.Context, token string) {
	c.mu.Lock()
	c.streamCalls[token]++
	c.mu.Unlock()

	for _, p := range c.Profiles {
		if p.Token != token {
			continue
		}
		if p.Fault {
			c.fault(ctx, http.StatusInternalServerError, "ter:Action", "stream unavailable")
			return
		}
		resp := etree.NewElement("trt:GetStreamUriResponse")
		mediaURI := resp.CreateElement("trt:MediaUri")
		mediaURI.CreateElement("tt:Uri").SetText(p.StreamURI)
		mediaURI.CreateElement("tt:InvalidAfterConnect").SetText("false")
		mediaURI.CreateElement("tt:InvalidAfterReboot").SetText("false")
		mediaURI.CreateElement("tt:Timeout").SetText("PT0S")
		c.reply(ctx, resp)
		return
	}
	c.fault(ctx, http.StatusBadRequest, "ter:NoProfile", "profile does not exist")
}

func (c *Camera) reply(ctx *gin.Context, resp *etree.Element) {
	c.write(ctx, http.StatusOK, resp)
}

func (c *Camera) fault(ctx *gin.Context, status int, subcode, reason string) {
	fault := etree.NewElement("SOAP-ENV:Fault")
	code := fault.CreateElement("SOAP-ENV:Code")
	code.CreateElement("SOAP-ENV:Value").SetText("SOAP-ENV:Sender")
	code.CreateElement("SOAP-ENV:Subcode").CreateElement("SOAP-ENV:Value").SetText(subcode)
	fault.CreateElement("SOAP-ENV:Reason").CreateElement("SOAP-ENV:Text").SetText(reason)
	c.write(ctx, status, fault)
}

func (c *Camera) write(ctx *gin.Context, status int, body *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement("SOAP-ENV:Envelope")
	env.CreateAttr("xmlns:SOAP-ENV", nsSOAP)
	env.CreateAttr("xmlns:tds", nsDevice)
	env.CreateAttr("xmlns:trt", nsMedia)
	env.CreateAttr("xmlns:tt", nsSchema)
	env.CreateAttr("xmlns:ter", "http://www.onvif.org/ver10/error")
	env.CreateElement("SOAP-ENV:Header")
	env.CreateElement("SOAP-ENV:Body").AddChild(body)

	out, err := doc.WriteToBytes()
	if err != nil {
		ctx.Status(http.StatusInternalServerError)
		return
	}
	ctx.Data(status, "application/soap+xml; charset=utf-8", out)
}

func textOf(el *etree.Element, path string) string {
	if child := el.FindElement(path); child != nil {
		return child.Text()
	}
	return ""
}
