/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


// Package db runs sql statements against a database.
//
//	sql:select * from orders where id = :#id?dataSource=#ordersDb
//	sql:insert into audit(kind, body) values (#, #)?driverName=postgres&dsn=...
//
// :#name parameters are read from message headers, then from the fields of a
// json object body. # parameters take the elements of a json array body in
// order. The SqlQuery header replaces the statement of the endpoint.
//
// Queries set the body to a json array of rows, or to the first row with
// outputType=SelectOne, and the SqlRowCount header. Other statements set
// SqlUpdateCount and, when the driver reports it, SqlGeneratedKey.
package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/json"
	"github.com/rulego/rulego-connectors/utils/maps"
)

const Type = "sql"

// Message headers.
const (
	HeaderQuery        = "SqlQuery"
	HeaderRowCount     = "SqlRowCount"
	HeaderUpdateCount  = "SqlUpdateCount"
	HeaderGeneratedKey = "SqlGeneratedKey"
)

// Output types of queries.
const (
	OutputSelectList = "SelectList"
	OutputSelectOne  = "SelectOne"
)

// Configuration of a sql endpoint.
type Configuration struct {
	// DataSource references a *sql.DB bean, for example #ordersDb.
	DataSource string
	// DriverName selects the driver with Dsn, and the placeholder style.
	// mysql by default.
	DriverName string
	Dsn        string
	// PoolSize limits open connections of databases opened from Dsn.
	PoolSize int
	// UseMessageBodyForSql takes the statement from the body.
	UseMessageBodyForSql bool
	OutputType           string
}

var _ types.Component = (*Component)(nil)

// Component shares databases opened from the same driver and dsn.
type Component struct {
	base.Component
	lock sync.Mutex
	dbs  map[string]*sql.DB
}

func (c *Component) Type() string {
	return Type
}

func (c *Component) New() types.Component {
	return &Component{}
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	c.dbs = make(map[string]*sql.DB)
	return c.Component.Init(ctx, configuration)
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	config := Configuration{DriverName: "mysql", OutputType: OutputSelectList}
	if err := maps.Map2Struct(c.Configuration, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if err := maps.Map2Struct(params, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if config.OutputType != OutputSelectList && config.OutputType != OutputSelectOne {
		return nil, fmt.Errorf("%w: unknown outputType %q", types.ErrIllegalArgument, config.OutputType)
	}
	e := &Endpoint{Endpoint: base.NewEndpoint(uri), Config: config, style: PlaceholderStyle(config.DriverName)}
	if !config.UseMessageBodyForSql {
		statement, err := ParseStatement(remaining, e.style)
		if err != nil {
			return nil, err
		}
		e.Statement = statement
	}
	db, err := c.db(config)
	if err != nil {
		return nil, err
	}
	e.db = db
	return e, nil
}

func (c *Component) db(config Configuration) (*sql.DB, error) {
	if config.DataSource != "" {
		if !types.IsRef(config.DataSource) {
			return nil, fmt.Errorf("%w: dataSource must be a #reference", types.ErrIllegalArgument)
		}
		db, err := types.LookupRef[*sql.DB](c.Config().Beans, config.DataSource)
		if err != nil {
			return nil, fmt.Errorf("%w: dataSource: %s", types.ErrIllegalArgument, err)
		}
		return db, nil
	}
	if config.Dsn == "" {
		return nil, fmt.Errorf("%w: dataSource or dsn is required", types.ErrIllegalArgument)
	}
	key := config.DriverName + "|" + config.Dsn
	c.lock.Lock()
	defer c.lock.Unlock()
	if db, ok := c.dbs[key]; ok {
		return db, nil
	}
	db, err := sql.Open(config.DriverName, config.Dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if config.PoolSize > 0 {
		db.SetMaxOpenConns(config.PoolSize)
	}
	c.dbs[key] = db
	return db, nil
}

// Destroy closes the databases opened from a dsn. Referenced data sources
// are left to their owner.
func (c *Component) Destroy() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for key, db := range c.dbs {
		_ = db.Close()
		delete(c.dbs, key)
	}
}

// Endpoint is a statement on a database.
type Endpoint struct {
	base.Endpoint
	Config    Configuration
	Statement *Statement
	style     string
	db        *sql.DB
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	return &Producer{Producer: base.Producer{ProducerEndpoint: e}, endpoint: e}, nil
}

// Producer runs the statement once per exchange.
type Producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *Producer) Process(exchange *types.Exchange) error {
	if err := p.process(exchange); err != nil {
		exchange.Err = err
		return err
	}
	return nil
}

func (p *Producer) statement(msg types.Message) (*Statement, error) {
	e := p.endpoint
	if q := msg.Headers.GetValue(HeaderQuery); q != "" {
		return ParseStatement(q, e.style)
	}
	if e.Config.UseMessageBodyForSql {
		return ParseStatement(msg.Body, e.style)
	}
	return e.Statement, nil
}

func (p *Producer) process(exchange *types.Exchange) error {
	msg := &exchange.In
	statement, err := p.statement(*msg)
	if err != nil {
		return err
	}
	args, err := statement.Args(*msg)
	if err != nil {
		return err
	}
	ctx := exchange.Ctx()
	db := p.endpoint.db
	if !statement.Select {
		result, err := db.ExecContext(ctx, statement.Query, args...)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err == nil {
			msg.Headers.PutValue(HeaderUpdateCount, strconv.FormatInt(n, 10))
		}
		if id, err := result.LastInsertId(); err == nil {
			msg.Headers.PutValue(HeaderGeneratedKey, strconv.FormatInt(id, 10))
		}
		return nil
	}
	rows, err := db.QueryContext(ctx, statement.Query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	result, err := scan(rows)
	if err != nil {
		return err
	}
	msg.Headers.PutValue(HeaderRowCount, strconv.Itoa(len(result)))
	var v interface{} = result
	if p.endpoint.Config.OutputType == OutputSelectOne {
		if len(result) == 0 {
			msg.Body = ""
			return nil
		}
		v = result[0]
	}
	body, err := json.MarshalString(v)
	if err != nil {
		return err
	}
	msg.Body = body
	msg.DataType = types.JSON
	return nil
}

func scan(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
