package webhook

import (
	"encoding/xml"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// twimlResponse is the carrier's reply document. An empty Message element
// list means "no reply to the sender".
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// renderTwiML serializes a reply body (possibly empty) as TwiML.
func renderTwiML(message string) (string, error) {
	body, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		return "", err
	}
	return xml.Header + string(body), nil
}

// writeTwiML sends a TwiML reply, empty when message is "".
func (s *Server) writeTwiML(c *gin.Context, message string) {
	doc, err := renderTwiML(message)
	if err != nil {
		// Marshalling a plain string cannot realistically fail, but a
		// webhook must still answer something parseable.
		log.Printf("webhook: render twiml: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}
