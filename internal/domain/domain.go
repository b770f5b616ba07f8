package domain

import (
	"github.com/latticedb/lattice-backend/internal/domain/graph"
)

type Entity = graph.Entity
type EntityType = graph.EntityType
type Link = graph.Link
type LinkType = graph.LinkType

type Acl = graph.Acl
type AclEntry = graph.AclEntry
type AclCarrier = graph.AclCarrier
type Principal = graph.Principal
type Permission = graph.Permission
type PrincipalType = graph.PrincipalType

type FilterExpression = graph.FilterExpression
type PropertyFilter = graph.PropertyFilter
type AndGroup = graph.AndGroup
type OrGroup = graph.OrGroup
type FilterOperator = graph.FilterOperator

const (
	PermissionRead  = graph.PermissionRead
	PermissionWrite = graph.PermissionWrite

	PrincipalUser  = graph.PrincipalUser
	PrincipalGroup = graph.PrincipalGroup
)

func ParseFilterExpression(raw []byte) (graph.FilterExpression, error) {
	return graph.ParseFilterExpression(raw)
}
