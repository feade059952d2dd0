// Package api provides the deliverability REST API.
//
//	@title						Email Deliverability API
//	@version					1.0
//	@description				Send governance, suppression, bounce and reputation tracking
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package api
