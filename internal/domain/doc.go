// Package domain содержит основные типы предметной области Voxline:
// Agent (голосовой агент), ProvisionRequest (запрос на создание),
// Resource (внешний ресурс, созданный пайплайном) и статусы пайплайна.
//
// Пакет не зависит от других internal-пакетов и не содержит бизнес-логики
// выполнения — только типы данных и их инварианты.
package domain
