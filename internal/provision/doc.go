// Package provision — драйвер полного цикла создания голосового агента.
//
// Provisioner связывает координатор этапов, исполнителей и менеджер
// компенсации: запускает цикл координации, классифицирует итог запуска,
// при необходимости выполняет откат и фиксирует терминальную запись.
//
// Исполнители этапов (Stages) — единственное место, где пайплайн
// касается внешнего мира: обход сайта, извлечение контента, внешние
// провайдеры агентов и номеров, Postgres.
package provision
