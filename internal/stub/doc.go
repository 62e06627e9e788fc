// Package stub is an in-memory stand-in for the templates and users backends.
//
// It serves the same routes as the real hosts:
//
//	GET /templates         {"template_list": [...]}
//	GET /templates/{id}    one template including its body
//	GET /users             {"user_list": [...]}
//	GET /users/{id}        one user
//	GET /login, /logout
//
// and two control endpoints used to simulate a struggling backend:
//
//	GET|POST /stub/config/busy    {"busy": true} makes data endpoints answer 503
//	POST /stub/config/delay?delay=2.5   data endpoints wait 2.5s before answering
//
// Tests mount it with httptest.NewServer; cmd/stub-backend serves it on a port.
package stub
