package orders

import (
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

const deliveryFeeLabel = "Delivery fee"

func buildSessionParams(items types.OrderItems, deliveryFee decimal.Decimal, reference, email, clientURL string) *stripe.CheckoutSessionParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items)+1)
	for _, item := range items {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Image != "" {
			productData.Images = stripe.StringSlice([]string{item.Image})
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				ProductData: productData,
				UnitAmount:  stripe.Int64(toCents(item.Price)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}
	if deliveryFee.IsPositive() {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(deliveryFeeLabel),
				},
				UnitAmount: stripe.Int64(toCents(deliveryFee)),
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(clientURL + "/success"),
		CancelURL:          stripe.String(clientURL + "/cancel"),
		ClientReferenceID:  stripe.String(reference),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	return params
}

// toCents converts a dollar amount to the smallest currency unit, rounding
// half away from zero.
func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
