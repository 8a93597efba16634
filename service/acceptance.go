package service

import (
	"net/http"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance walks the http surface. apiRequest builds a request relative
// to /v1.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	command := func(name string, body JSON) *apitest.Response {
		return apiRequest("POST", "/collections/"+name+":command").WithBodyJson(body).Do()
	}

	a.Alternative("Create collection", func(a *biff.A) {
		resp := apiRequest("POST", "/collections").
			WithBodyJson(JSON{
				"name": "people",
				"type": "document",
			}).Do()
		Save(resp, "Create collection", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		body := resp.BodyJson().(JSON)
		biff.AssertEqual(body["name"], "people")
		biff.AssertEqual(body["kind"], "document")

		a.Alternative("Retrieve collection", func(a *biff.A) {
			resp := apiRequest("GET", "/collections/people").Do()
			Save(resp, "Retrieve collection", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			body := resp.BodyJson().(JSON)
			biff.AssertEqual(body["name"], "people")
			biff.AssertEqual(body["ready"], true)
			biff.AssertEqual(body["dropped"], false)
		})

		a.Alternative("Collection status", func(a *biff.A) {
			resp := command("people", JSON{"id": "first-find", "kind": "find"})
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.BodyJson().(JSON)["id"], "first-find")

			resp = apiRequest("GET", "/collections/people:status").Do()
			Save(resp, "Collection status", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			body := resp.BodyJson().(JSON)
			biff.AssertEqual(body["kind"], "status")
			biff.AssertEqual(body["collection"], "people")
		})

		a.Alternative("List collections", func(a *biff.A) {
			resp := apiRequest("GET", "/collections").Do()
			Save(resp, "List collections", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			list := resp.BodyJson().([]interface{})
			biff.AssertEqual(len(list), 1)
			biff.AssertEqual(list[0].(JSON)["name"], "people")
		})

		a.Alternative("Create twice", func(a *biff.A) {
			resp := apiRequest("POST", "/collections").
				WithBodyJson(JSON{"name": "people"}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusConflict)
		})

		a.Alternative("Drop collection", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/people:drop").Do()
			Save(resp, "Drop collection", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNoContent)

			a.Alternative("Get dropped collection", func(a *biff.A) {
				resp := apiRequest("GET", "/collections/people").Do()
				Save(resp, "Get collection - not found", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})

		a.Alternative("Insert", func(a *biff.A) {
			resp := command("people", JSON{
				"kind": "insert",
				"spec": JSON{
					"payload": JSON{"id": "1", "name": "Fulanez", "age": 30},
				},
			})
			Save(resp, "Insert", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			body := resp.BodyJson().(JSON)
			biff.AssertEqual(body["kind"], "response")
			biff.AssertEqual(body["counter"], 1.0)
			biff.AssertEqualJson(body["items"], []JSON{
				{"id": "1", "name": "Fulanez", "age": 30},
			})

			command("people", JSON{"kind": "insert", "spec": JSON{"payload": JSON{"id": "2", "name": "Menganez", "age": 40}}})
			command("people", JSON{"kind": "insert", "spec": JSON{"payload": JSON{"id": "3", "name": "Zutanez", "age": 20}}})

			a.Alternative("Find sorted", func(a *biff.A) {
				resp := command("people", JSON{
					"kind": "find",
					"spec": JSON{
						"sort":   "age_desc",
						"take":   2,
						"fields": "name",
					},
				})
				Save(resp, "Find - sorted", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				body := resp.BodyJson().(JSON)
				biff.AssertEqualJson(body["items"], []JSON{
					{"name": "Menganez"},
					{"name": "Fulanez"},
				})
				biff.AssertEqual(body["count"], 3.0)
			})

			a.Alternative("Find with filter", func(a *biff.A) {
				resp := command("people", JSON{
					"kind": "find",
					"spec": JSON{
						"filter":    `{"name":"$arg"}`,
						"filterarg": "Zutanez",
					},
				})
				Save(resp, "Find - filter", ``)

				body := resp.BodyJson().(JSON)
				biff.AssertEqualJson(body["items"], []JSON{
					{"id": "3", "name": "Zutanez", "age": 20},
				})
			})

			a.Alternative("Find from the end", func(a *biff.A) {
				resp := command("people", JSON{
					"kind": "find2",
					"spec": JSON{"take": 1, "fields": "id"},
				})

				body := resp.BodyJson().(JSON)
				biff.AssertEqualJson(body["items"], []JSON{{"id": "3"}})
			})

			a.Alternative("Scalar", func(a *biff.A) {
				resp := command("people", JSON{
					"kind": "find",
					"spec": JSON{"scalar": "sum:age"},
				})
				Save(resp, "Find - scalar", ``)

				body := resp.BodyJson().(JSON)
				biff.AssertEqual(body["scalar"], 90.0)
			})

			a.Alternative("Update with backup", func(a *biff.A) {
				resp := command("people", JSON{
					"kind": "update",
					"spec": JSON{
						"filter": `{"id":"1"}`,
						"modify": `{"$inc":{"age":1}}`,
						"backup": JSON{"user": "admin"},
					},
				})
				Save(resp, "Update", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(resp.BodyJson().(JSON)["counter"], 1.0)

				resp = apiRequest("GET", "/collections/people:backups").Do()
				Save(resp, "Backups", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				entries := resp.BodyJson().([]interface{})
				biff.AssertEqual(len(entries), 1)
				entry := entries[0].(JSON)
				biff.AssertEqualJson(entry["meta"], JSON{"user": "admin"})
				biff.AssertEqualJson(entry["payload"], []JSON{
					{"id": "1", "name": "Fulanez", "age": 30},
				})
			})

			a.Alternative("Remove", func(a *biff.A) {
				resp := command("people", JSON{
					"kind": "remove",
					"spec": JSON{"filter": `{"age":{"$gt":25}}`},
				})
				Save(resp, "Remove", ``)

				biff.AssertEqual(resp.BodyJson().(JSON)["counter"], 2.0)

				resp = command("people", JSON{"kind": "find", "spec": JSON{"fields": "id"}})
				biff.AssertEqualJson(resp.BodyJson().(JSON)["items"], []JSON{{"id": "3"}})
			})

			a.Alternative("Bad filter", func(a *biff.A) {
				resp := command("people", JSON{
					"kind": "find",
					"spec": JSON{"filter": `{"name":`},
				})

				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
				biff.AssertNotNil(resp.BodyJson().(JSON)["error"])
			})

			a.Alternative("Dropped by command", func(a *biff.A) {
				resp := command("people", JSON{"kind": "drop"})
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				resp = command("people", JSON{"kind": "find"})
				biff.AssertEqual(resp.StatusCode, http.StatusGone)
			})
		})
	})

	a.Alternative("Create table", func(a *biff.A) {
		resp := apiRequest("POST", "/collections").
			WithBodyJson(JSON{
				"name":   "products",
				"type":   "table",
				"schema": "id:string(4)|price:number(6)",
			}).Do()
		Save(resp, "Create table", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		biff.AssertEqual(resp.BodyJson().(JSON)["kind"], "table")

		for _, p := range []JSON{{"id": "a", "price": 3}, {"id": "b", "price": 1}, {"id": "c", "price": 2}} {
			resp := command("products", JSON{"kind": "insert", "spec": JSON{"payload": p}})
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
		}

		resp = command("products", JSON{
			"kind": "find",
			"spec": JSON{"sort": "price", "fields": "id"},
		})
		Save(resp, "Find - table", ``)

		biff.AssertEqualJson(resp.BodyJson().(JSON)["items"], []JSON{
			{"id": "b"}, {"id": "c"}, {"id": "a"},
		})

		a.Alternative("Alter", func(a *biff.A) {
			resp := command("products", JSON{
				"kind":   "alter",
				"schema": "id:string(4)|price:number(6)|stock:number(4)",
			})
			Save(resp, "Alter", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/collections/products").Do()
			biff.AssertEqual(resp.BodyJson().(JSON)["schema"], "id:string(4)|price:number(6)|stock:number(4)")
		})
	})

	a.Alternative("Create table without schema", func(a *biff.A) {
		resp := apiRequest("POST", "/collections").
			WithBodyJson(JSON{"name": "broken", "type": "table", "schema": ""}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Unknown collection", func(a *biff.A) {
		resp := command("ghost", JSON{"kind": "find"})

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})
}
