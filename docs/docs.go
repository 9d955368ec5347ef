// Package docs holds the OpenAPI description served at /docs.
// Regenerate with: swag init -g cmd/server/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"termsOfService": "http://swagger.io/terms/",
		"contact": {
			"name": "API Support",
			"url": "http://www.swagger.io/support",
			"email": "support@swagger.io"
		},
		"license": {
			"name": "Apache 2.0",
			"url": "http://www.apache.org/licenses/LICENSE-2.0.html"
		},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/auth/register": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Register a new user",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.RegisterRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.TokenResponse"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"409": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				]
			}
		},
		"/auth/login": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Login",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.LoginRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.TokenResponse"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				]
			}
		},
		"/auth/logout": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Logout",
				"produces": [
					"application/json"
				],
				"responses": {
					"204": {
						"description": "OK"
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/auth/me": {
			"get": {
				"tags": [
					"auth"
				],
				"summary": "Get Current User",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.MeResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/profiles": {
			"get": {
				"tags": [
					"profiles"
				],
				"summary": "List profiles",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "query",
						"name": "ids",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/domain.Profile"
							}
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/profiles/me": {
			"patch": {
				"tags": [
					"profiles"
				],
				"summary": "Update my profile",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.UpdateProfileRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Profile"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/profiles/{userID}": {
			"get": {
				"tags": [
					"profiles"
				],
				"summary": "Get profile",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "userID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Profile"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/groups": {
			"get": {
				"tags": [
					"groups"
				],
				"summary": "List my groups",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/domain.Group"
							}
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"groups"
				],
				"summary": "Create group",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.CreateGroupRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Group"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/groups/join": {
			"post": {
				"tags": [
					"groups"
				],
				"summary": "Join group",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.JoinGroupRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Group"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/groups/{groupID}": {
			"get": {
				"tags": [
					"groups"
				],
				"summary": "Get group",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "groupID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Group"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"patch": {
				"tags": [
					"groups"
				],
				"summary": "Update group",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.UpdateGroupRequest"
						}
					},
					{
						"in": "path",
						"name": "groupID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Group"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/groups/{groupID}/leave": {
			"post": {
				"tags": [
					"groups"
				],
				"summary": "Leave group",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "groupID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"204": {
						"description": "OK"
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/groups/{groupID}/members": {
			"get": {
				"tags": [
					"groups"
				],
				"summary": "List members",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "groupID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/domain.Membership"
							}
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/groups/{groupID}/members/{userID}": {
			"delete": {
				"tags": [
					"groups"
				],
				"summary": "Remove member",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "groupID",
						"required": true,
						"type": "string"
					},
					{
						"in": "path",
						"name": "userID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"204": {
						"description": "OK"
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/groups/{groupID}/members/{userID}/promote": {
			"post": {
				"tags": [
					"groups"
				],
				"summary": "Promote member",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "groupID",
						"required": true,
						"type": "string"
					},
					{
						"in": "path",
						"name": "userID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"204": {
						"description": "OK"
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/groups/{groupID}/chat": {
			"post": {
				"tags": [
					"chats"
				],
				"summary": "Ensure group chat",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "groupID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Chat"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/proposals": {
			"get": {
				"tags": [
					"proposals"
				],
				"summary": "List proposals",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "query",
						"name": "group_id",
						"required": false,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/domain.Proposal"
							}
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"proposals"
				],
				"summary": "Create proposal",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.CreateProposalRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Proposal"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/proposals/{proposalID}": {
			"get": {
				"tags": [
					"proposals"
				],
				"summary": "Get proposal",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Proposal"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"patch": {
				"tags": [
					"proposals"
				],
				"summary": "Update proposal",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.UpdateProposalRequest"
						}
					},
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Proposal"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			},
			"delete": {
				"tags": [
					"proposals"
				],
				"summary": "Delete proposal",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"204": {
						"description": "OK"
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/proposals/{proposalID}/status": {
			"post": {
				"tags": [
					"proposals"
				],
				"summary": "Close voting",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.SetStatusRequest"
						}
					},
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Proposal"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"409": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/proposals/{proposalID}/vote": {
			"put": {
				"tags": [
					"proposals"
				],
				"summary": "Vote",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.VoteRequest"
						}
					},
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Vote"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"409": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/proposals/{proposalID}/comments": {
			"get": {
				"tags": [
					"proposals"
				],
				"summary": "List comments",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/domain.Comment"
							}
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"proposals"
				],
				"summary": "Add comment",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.CommentRequest"
						}
					},
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Comment"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/proposals/{proposalID}/event": {
			"post": {
				"tags": [
					"events"
				],
				"summary": "Create event from proposal",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "proposalID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Event"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/events": {
			"get": {
				"tags": [
					"events"
				],
				"summary": "List events",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "query",
						"name": "group_id",
						"required": false,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/domain.Event"
							}
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"events"
				],
				"summary": "Create event",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.CreateEventRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Event"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/events/{eventID}": {
			"get": {
				"tags": [
					"events"
				],
				"summary": "Get event",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "eventID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Event"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/events/{eventID}/attendance": {
			"put": {
				"tags": [
					"events"
				],
				"summary": "Set attendance",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.AttendanceRequest"
						}
					},
					{
						"in": "path",
						"name": "eventID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Attendance"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/chats": {
			"get": {
				"tags": [
					"chats"
				],
				"summary": "List chats",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/domain.Chat"
							}
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/chats/direct": {
			"post": {
				"tags": [
					"chats"
				],
				"summary": "Open direct chat",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.DirectChatRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Chat"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/chats/{chatID}": {
			"get": {
				"tags": [
					"chats"
				],
				"summary": "Get chat",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "chatID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Chat"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/chats/{chatID}/messages": {
			"get": {
				"tags": [
					"chats"
				],
				"summary": "List messages",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "chatID",
						"required": true,
						"type": "string"
					},
					{
						"in": "query",
						"name": "before_at",
						"required": false,
						"type": "string"
					},
					{
						"in": "query",
						"name": "before_id",
						"required": false,
						"type": "string"
					},
					{
						"in": "query",
						"name": "limit",
						"required": false,
						"type": "integer"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.MessagePage"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"chats"
				],
				"summary": "Send message",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "input",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.SendMessageRequest"
						}
					},
					{
						"in": "path",
						"name": "chatID",
						"required": true,
						"type": "string"
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.Message"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"401": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"403": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"404": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/storage/{bucket}": {
			"post": {
				"tags": [
					"storage"
				],
				"summary": "Upload file",
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"multipart/form-data"
				],
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"in": "path",
						"name": "bucket",
						"required": true,
						"type": "string"
					},
					{
						"in": "formData",
						"name": "file",
						"required": true,
						"type": "file"
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/api.UploadResponse"
						}
					},
					"400": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					},
					"413": {
						"description": "error",
						"schema": {
							"$ref": "#/definitions/api.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"api.ErrorResponse": {
			"type": "object",
			"properties": {
				"error": {
					"type": "string"
				},
				"code": {
					"type": "string"
				}
			}
		},
		"api.RegisterRequest": {
			"type": "object",
			"properties": {
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				},
				"username": {
					"type": "string"
				},
				"display_name": {
					"type": "string"
				},
				"first_name": {
					"type": "string"
				},
				"last_name": {
					"type": "string"
				}
			},
			"required": [
				"email",
				"password"
			]
		},
		"api.LoginRequest": {
			"type": "object",
			"properties": {
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				}
			},
			"required": [
				"email",
				"password"
			]
		},
		"api.TokenResponse": {
			"type": "object",
			"properties": {
				"access_token": {
					"type": "string"
				},
				"token_type": {
					"type": "string"
				},
				"user": {
					"$ref": "#/definitions/domain.User"
				},
				"profile": {
					"$ref": "#/definitions/domain.Profile"
				}
			}
		},
		"api.MeResponse": {
			"type": "object",
			"properties": {
				"user": {
					"$ref": "#/definitions/domain.User"
				},
				"profile": {
					"$ref": "#/definitions/domain.Profile"
				}
			}
		},
		"api.UpdateProfileRequest": {
			"type": "object",
			"properties": {
				"display_name": {
					"type": "string"
				},
				"username": {
					"type": "string"
				},
				"first_name": {
					"type": "string"
				},
				"last_name": {
					"type": "string"
				},
				"avatar_url": {
					"type": "string"
				},
				"bio": {
					"type": "string"
				}
			}
		},
		"api.CreateGroupRequest": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"image_url": {
					"type": "string"
				}
			},
			"required": [
				"name"
			]
		},
		"api.UpdateGroupRequest": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"image_url": {
					"type": "string"
				}
			}
		},
		"api.JoinGroupRequest": {
			"type": "object",
			"properties": {
				"invite_code": {
					"type": "string"
				}
			},
			"required": [
				"invite_code"
			]
		},
		"api.CreateProposalRequest": {
			"type": "object",
			"properties": {
				"title": {
					"type": "string"
				},
				"group_id": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"expires_at": {
					"type": "string",
					"format": "date-time"
				},
				"event_date": {
					"type": "string",
					"format": "date-time"
				},
				"image_url": {
					"type": "string"
				},
				"location": {
					"type": "string"
				}
			},
			"required": [
				"title",
				"group_id"
			]
		},
		"api.UpdateProposalRequest": {
			"type": "object",
			"properties": {
				"title": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"expires_at": {
					"type": "string",
					"format": "date-time"
				},
				"event_date": {
					"type": "string",
					"format": "date-time"
				},
				"image_url": {
					"type": "string"
				},
				"location": {
					"type": "string"
				}
			}
		},
		"api.SetStatusRequest": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string",
					"enum": [
						"closed",
						"passed",
						"failed"
					]
				}
			},
			"required": [
				"status"
			]
		},
		"api.VoteRequest": {
			"type": "object",
			"properties": {
				"vote_type": {
					"type": "string",
					"enum": [
						"yes",
						"no",
						"abstain"
					]
				}
			},
			"required": [
				"vote_type"
			]
		},
		"api.CommentRequest": {
			"type": "object",
			"properties": {
				"content": {
					"type": "string"
				}
			},
			"required": [
				"content"
			]
		},
		"api.CreateEventRequest": {
			"type": "object",
			"properties": {
				"title": {
					"type": "string"
				},
				"group_id": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"location": {
					"type": "string"
				},
				"image_url": {
					"type": "string"
				},
				"start_date": {
					"type": "string",
					"format": "date-time"
				},
				"end_date": {
					"type": "string",
					"format": "date-time"
				}
			},
			"required": [
				"title",
				"group_id",
				"start_date"
			]
		},
		"api.AttendanceRequest": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string",
					"enum": [
						"attending",
						"not_attending",
						"pending"
					]
				}
			},
			"required": [
				"status"
			]
		},
		"api.DirectChatRequest": {
			"type": "object",
			"properties": {
				"user_id": {
					"type": "string"
				}
			},
			"required": [
				"user_id"
			]
		},
		"api.SendMessageRequest": {
			"type": "object",
			"properties": {
				"content": {
					"type": "string"
				},
				"message_type": {
					"type": "string",
					"enum": [
						"text",
						"image",
						"file"
					]
				},
				"file_url": {
					"type": "string"
				}
			}
		},
		"api.MessagePage": {
			"type": "object",
			"properties": {
				"messages": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/domain.Message"
					}
				},
				"has_more": {
					"type": "boolean"
				},
				"next_cursor": {
					"$ref": "#/definitions/domain.MessageCursor"
				}
			}
		},
		"api.UploadResponse": {
			"type": "object",
			"properties": {
				"bucket": {
					"type": "string"
				},
				"path": {
					"type": "string"
				},
				"url": {
					"type": "string"
				}
			}
		},
		"domain.User": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"is_active": {
					"type": "boolean"
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				}
			}
		},
		"domain.Profile": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"display_name": {
					"type": "string"
				},
				"username": {
					"type": "string"
				},
				"first_name": {
					"type": "string"
				},
				"last_name": {
					"type": "string"
				},
				"avatar_url": {
					"type": "string"
				},
				"bio": {
					"type": "string"
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				}
			}
		},
		"domain.Group": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"name": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"image_url": {
					"type": "string"
				},
				"invite_code": {
					"type": "string"
				},
				"created_by": {
					"type": "string"
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				},
				"member_count": {
					"type": "integer"
				},
				"user_role": {
					"type": "string",
					"enum": [
						"admin",
						"member"
					]
				}
			}
		},
		"domain.Membership": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"group_id": {
					"type": "string"
				},
				"user_id": {
					"type": "string"
				},
				"role": {
					"type": "string",
					"enum": [
						"admin",
						"member"
					]
				},
				"joined_at": {
					"type": "string",
					"format": "date-time"
				},
				"profile": {
					"$ref": "#/definitions/domain.Profile"
				}
			}
		},
		"domain.Vote": {
			"type": "object",
			"properties": {
				"proposal_id": {
					"type": "string"
				},
				"user_id": {
					"type": "string"
				},
				"vote_type": {
					"type": "string",
					"enum": [
						"yes",
						"no",
						"abstain"
					]
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				}
			}
		},
		"domain.Proposal": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"title": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"image_url": {
					"type": "string"
				},
				"location": {
					"type": "string"
				},
				"group_id": {
					"type": "string"
				},
				"created_by": {
					"type": "string"
				},
				"expires_at": {
					"type": "string",
					"format": "date-time"
				},
				"event_date": {
					"type": "string",
					"format": "date-time"
				},
				"status": {
					"type": "string",
					"enum": [
						"active",
						"closed",
						"passed",
						"failed"
					]
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				},
				"group_name": {
					"type": "string"
				},
				"votes": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/domain.Vote"
					}
				}
			}
		},
		"domain.Comment": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"proposal_id": {
					"type": "string"
				},
				"user_id": {
					"type": "string"
				},
				"content": {
					"type": "string"
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				}
			}
		},
		"domain.Attendance": {
			"type": "object",
			"properties": {
				"event_id": {
					"type": "string"
				},
				"user_id": {
					"type": "string"
				},
				"status": {
					"type": "string",
					"enum": [
						"attending",
						"not_attending",
						"pending"
					]
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				}
			}
		},
		"domain.Event": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"title": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"location": {
					"type": "string"
				},
				"image_url": {
					"type": "string"
				},
				"group_id": {
					"type": "string"
				},
				"created_by": {
					"type": "string"
				},
				"proposal_id": {
					"type": "string"
				},
				"start_date": {
					"type": "string",
					"format": "date-time"
				},
				"end_date": {
					"type": "string",
					"format": "date-time"
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				},
				"group_name": {
					"type": "string"
				},
				"group_image_url": {
					"type": "string"
				},
				"attendees": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/domain.Attendance"
					}
				}
			}
		},
		"domain.Chat": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"type": {
					"type": "string",
					"enum": [
						"group",
						"direct"
					]
				},
				"name": {
					"type": "string"
				},
				"group_id": {
					"type": "string"
				},
				"created_by": {
					"type": "string"
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"updated_at": {
					"type": "string",
					"format": "date-time"
				},
				"group_name": {
					"type": "string"
				},
				"last_message": {
					"type": "string"
				},
				"last_message_at": {
					"type": "string",
					"format": "date-time"
				},
				"unread_count": {
					"type": "integer"
				},
				"member_ids": {
					"type": "array",
					"items": {
						"type": "string"
					}
				}
			}
		},
		"domain.Message": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"chat_id": {
					"type": "string"
				},
				"user_id": {
					"type": "string"
				},
				"content": {
					"type": "string"
				},
				"message_type": {
					"type": "string",
					"enum": [
						"text",
						"image",
						"file"
					]
				},
				"file_url": {
					"type": "string"
				},
				"created_at": {
					"type": "string",
					"format": "date-time"
				}
			}
		},
		"domain.MessageCursor": {
			"type": "object",
			"properties": {
				"created_at": {
					"type": "string",
					"format": "date-time"
				},
				"id": {
					"type": "string"
				}
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:		  "1.0",
	Host:			 "localhost:8000",
	BasePath:		 "/api",
	Schemes:		  []string{},
	Title:			"Huddle API",
	Description:	  "Group planning backend: groups, proposals and votes, events, chats.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:		"{{",
	RightDelim:	   "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
