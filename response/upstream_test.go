package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectUpstreamErrors(t *testing.T) {
	t.Run("NDC 21.3 child elements in a namespace", func(t *testing.T) {
		body := []byte(`<IATA_OrderViewRS xmlns="http://www.iata.org/IATA/2015/EASD/00/IATA_OffersAndOrdersMessage">
  <Error>
    <Code>OF4053</Code>
    <DescText>Offer expired</DescText>
    <OwnerName>JQ</OwnerName>
    <StatusText>Failed</StatusText>
    <TypeCode>PR</TypeCode>
  </Error>
  <Error><Code>712</Code><DescText>Seat not available</DescText></Error>
</IATA_OrderViewRS>`)

		got := InspectUpstreamErrors(body)
		require.Len(t, got, 2)
		assert.Equal(t, UpstreamError{Code: "OF4053", Type: "PR", Owner: "JQ", Status: "Failed", Message: "Offer expired"}, got[0])
		assert.Equal(t, "712", got[1].Code)
		assert.Equal(t, "Seat not available", got[1].Message)
	})

	t.Run("NDC 17.2 attribute form", func(t *testing.T) {
		body := []byte(`<AirShoppingRS><Errors><Error Code="911" Type="PR" ShortText="System error">Unable to process request</Error></Errors></AirShoppingRS>`)

		got := InspectUpstreamErrors(body)
		require.Len(t, got, 1)
		assert.Equal(t, "911", got[0].Code)
		assert.Equal(t, "PR", got[0].Type)
		assert.Equal(t, "System error", got[0].Message)

		protoErr := got[0].AsProtocolError()
		assert.Equal(t, "911", protoErr.Code)
		assert.Contains(t, protoErr.Error(), "System error")
	})

	t.Run("text-only error element", func(t *testing.T) {
		got := InspectUpstreamErrors([]byte(`<Rs><Error>Timeout from host</Error></Rs>`))
		require.Len(t, got, 1)
		assert.Equal(t, "Timeout from host", got[0].Message)
	})

	t.Run("SOAP fault", func(t *testing.T) {
		body := []byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><soap:Fault><faultcode>soap:Server</faultcode><faultstring>Internal failure</faultstring></soap:Fault></soap:Body></soap:Envelope>`)
		got := InspectUpstreamErrors(body)
		require.Len(t, got, 1)
		assert.Equal(t, "Fault", got[0].Type)
		assert.Equal(t, "soap:Server", got[0].Code)
		assert.Equal(t, "Internal failure", got[0].Message)
	})

	t.Run("success body has no markers", func(t *testing.T) {
		assert.Empty(t, InspectUpstreamErrors([]byte(`<IATA_AirShoppingRS><Response><OffersGroup/></Response></IATA_AirShoppingRS>`)))
		assert.Empty(t, InspectUpstreamErrors([]byte(`<Warnings><Warning Code="1">note</Warning></Warnings>`)))
	})

	t.Run("non XML", func(t *testing.T) {
		assert.Empty(t, InspectUpstreamErrors(nil))
		assert.Empty(t, InspectUpstreamErrors([]byte("not xml at all")))
	})
}
