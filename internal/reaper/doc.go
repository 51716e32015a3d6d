// Package reaper дочищает ресурсы после неуспешных откатов.
//
// # Обзор
//
// Компенсация при откате пайплайна выполняется best-effort: внешний
// провайдер может быть недоступен, таймаут ресурса — исчерпан. Такие
// неуспехи попадают в rollback_history с failed_count > 0 и полным
// снимком ресурса — reaper периодически повторяет компенсацию по
// этим записям, пока ресурсы не будут освобождены.
//
// # Источники работы
//
// Reaper совмещает два источника:
//   - Consumer очереди pipelines.failed — событие о неуспешном
//     пайплайне триггерит внеочередной проход (event-driven)
//   - Cron-расписание (default: каждые 5 минут) — регулярный проход
//     по rollback_history (polling fallback)
//
// Оба источника сходятся в Sweep: записи с неуспехами перечитываются
// из БД, компенсаторы выполняются повторно, полностью дочищенные
// записи помечаются resolved.
package reaper
