// Package transports imports all built-in pub/sub backends so they register
// with the default registry.
package transports

import (
	_ "github.com/drblury/runtimeclient/transport/aws"
	_ "github.com/drblury/runtimeclient/transport/channel"
	_ "github.com/drblury/runtimeclient/transport/http"
	_ "github.com/drblury/runtimeclient/transport/kafka"
	_ "github.com/drblury/runtimeclient/transport/nats"
	_ "github.com/drblury/runtimeclient/transport/rabbitmq"
)
