// httpclient/operations.go
package httpclient

import (
	"fmt"
	"sort"

	"github.com/flightgate/go-ndc-http-client/environments"
	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
)

// Operation is one NDC message exchange exposed by the gateway.
type Operation struct {
	Name          string
	Path          string
	RequiresToken bool
}

func ndcOperation(name string, requiresToken bool) Operation {
	return Operation{Name: name, Path: environments.APIVersionPath + "/" + name, RequiresToken: requiresToken}
}

// operations is the static operation to path table of the gateway.
var operations = map[string]Operation{
	"AirShopping":      ndcOperation("AirShopping", true),
	"OfferPrice":       ndcOperation("OfferPrice", true),
	"ServiceList":      ndcOperation("ServiceList", true),
	"SeatAvailability": ndcOperation("SeatAvailability", true),
	"OrderCreate":      ndcOperation("OrderCreate", true),
	"OrderRetrieve":    ndcOperation("OrderRetrieve", true),
	"OrderReshop":      ndcOperation("OrderReshop", true),
	"OrderQuote":       ndcOperation("OrderQuote", true),
	"OrderChange":      ndcOperation("OrderChange", true),
	"OrderCancel":      ndcOperation("OrderCancel", true),
	"IdentityList":     ndcOperation("IdentityList", true),
	"AirlineProfile":   ndcOperation("AirlineProfile", false),
}

// LookupOperation resolves an operation name. Unknown names are a ConfigurationError.
func LookupOperation(name string) (Operation, error) {
	op, ok := operations[name]
	if !ok {
		return Operation{}, &ndcerrors.ConfigurationError{
			Field:   "operation",
			Message: fmt.Sprintf("unknown NDC operation %q", name),
		}
	}
	return op, nil
}

// OperationNames lists the supported operations in sorted order.
func OperationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
