package services

import (
	"net/url"
	"strings"
)

const (
	ShippingProviderDelhivery = "delhivery"
	ShippingProviderBlueDart  = "bluedart"
	ShippingProviderDTDC      = "dtdc"
	ShippingProviderIndiaPost = "indiapost"
	ShippingProviderOther     = "other"
)

// NormalizeShippingProvider returns a canonical provider key for known carriers.
func NormalizeShippingProvider(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	replacer := strings.NewReplacer(" ", "", "-", "", "_", "")
	normalized = replacer.Replace(normalized)

	switch normalized {
	case "delhivery":
		return ShippingProviderDelhivery
	case "bluedart", "bluedartexpress":
		return ShippingProviderBlueDart
	case "dtdc", "dtdcexpress":
		return ShippingProviderDTDC
	case "indiapost", "speedpost":
		return ShippingProviderIndiaPost
	case "other":
		return ShippingProviderOther
	default:
		return ""
	}
}

// CanonicalCarrierName maps a provider key to the display name.
func CanonicalCarrierName(provider string) string {
	switch NormalizeShippingProvider(provider) {
	case ShippingProviderDelhivery:
		return "Delhivery"
	case ShippingProviderBlueDart:
		return "Blue Dart"
	case ShippingProviderDTDC:
		return "DTDC"
	case ShippingProviderIndiaPost:
		return "India Post"
	default:
		return ""
	}
}

// NormalizeCarrierName keeps custom carriers untouched and normalizes known ones.
func NormalizeCarrierName(carrier string) string {
	trimmed := strings.TrimSpace(carrier)
	if trimmed == "" {
		return ""
	}
	if canonical := CanonicalCarrierName(trimmed); canonical != "" {
		return canonical
	}
	return trimmed
}

// BuildTrackingURL returns a carrier-specific tracking URL. Unknown carriers return empty.
func BuildTrackingURL(carrier, trackingNumber string) string {
	number := strings.TrimSpace(trackingNumber)
	if number == "" {
		return ""
	}

	escaped := url.QueryEscape(number)
	switch NormalizeShippingProvider(carrier) {
	case ShippingProviderDelhivery:
		return "https://www.delhivery.com/track/package/" + url.PathEscape(number)
	case ShippingProviderBlueDart:
		return "https://www.bluedart.com/web/guest/trackdartresult?trackFor=0&trackNo=" + escaped
	case ShippingProviderDTDC:
		return "https://www.dtdc.in/tracking.asp?strCnno=" + escaped
	case ShippingProviderIndiaPost:
		return "https://www.indiapost.gov.in/_layouts/15/dop.portal.tracking/trackconsignment.aspx?consignment=" + escaped
	default:
		return ""
	}
}
