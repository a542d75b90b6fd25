// Package backend implements billing.Backend over the billing server's
// HTTP JSON API.
//
// Requests are throttled by a token bucket so that many concurrent poll
// sessions cannot flood the server, and every request carries its own
// timeout. A 402 response is reported as *billing.PaymentError.
//
// Routes:
//
//	GET  /api/team-subscriptions
//	GET  /api/team-slots
//	POST /api/team-subscriptions/{id}/slots   {"quantity": n}
//	POST /api/checkout                        {"plan_id": "...", "quantity": n}
//	GET  /api/payment-ui
//	GET  /api/account-statement
package backend
