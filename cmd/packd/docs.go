package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           packd API
// @version         1.0
// @description     HTTP API for managing locally installed ML packages and tracked downloads.
//
// @contact.name   packd maintainers
// @contact.url    https://github.com/your-org/packd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
